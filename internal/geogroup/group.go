// Package geogroup группирует происшествия, совпадающие по координатам,
// в одну метку для отображения.
package geogroup

import (
	"math"

	"github.com/shenikar/dispatch_coordination_system/internal/models"
)

// precision - 6 знаков после запятой (~0.1 м)
const precision = 1e6

// ReportGroup - группа происшествий с общим округленным ключом координат
type ReportGroup struct {
	Latitude  float64                 `json:"latitude"`
	Longitude float64                 `json:"longitude"`
	Severity  models.Severity         `json:"severity"`
	Count     int                     `json:"count"`
	Primary   models.AccidentReport   `json:"primary"`
	Members   []models.AccidentReport `json:"members"`
}

type coordKey struct {
	lat, lon int64
}

func keyOf(lat, lon float64) coordKey {
	return coordKey{
		lat: int64(math.Round(lat * precision)),
		lon: int64(math.Round(lon * precision)),
	}
}

// Group раскладывает происшествия по группам за один проход.
// Порядок групп совпадает с порядком первого появления ключа,
// первый встреченный член группы становится Primary.
// Записи без координат должны быть отфильтрованы до вызова.
func Group(reports []models.AccidentReport) []ReportGroup {
	index := make(map[coordKey]int, len(reports))
	groups := make([]ReportGroup, 0, len(reports))

	for _, r := range reports {
		key := keyOf(r.Latitude, r.Longitude)
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, ReportGroup{
				Latitude:  float64(key.lat) / precision,
				Longitude: float64(key.lon) / precision,
				Severity:  r.Severity,
				Count:     1,
				Primary:   r,
				Members:   []models.AccidentReport{r},
			})
			continue
		}

		g := &groups[i]
		g.Count++
		g.Members = append(g.Members, r)
		if r.Severity.Rank() > g.Severity.Rank() {
			g.Severity = r.Severity
		}
	}
	return groups
}
