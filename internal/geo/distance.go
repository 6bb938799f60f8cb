package geo

import "math"

// EarthRadiusKm - средний радиус Земли
const EarthRadiusKm = 6371.0

// DistanceKm считает расстояние по большому кругу (haversine) между двумя точками в градусах.
// Проверка входа на совести вызывающего кода.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rLat1 := toRadians(lat1)
	rLat2 := toRadians(lat2)
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// погрешность округления может дать a чуть больше 1
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
