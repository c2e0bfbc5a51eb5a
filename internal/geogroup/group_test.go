package geogroup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(lat, lon float64, sev models.Severity) models.AccidentReport {
	return models.AccidentReport{ID: uuid.New(), Latitude: lat, Longitude: lon, Severity: sev}
}

func TestGroup_SameCoordinate(t *testing.T) {
	r1 := report(8.630000, 126.093000, models.SeverityModerate)
	r2 := report(8.630000, 126.093000, models.SeverityCritical)

	groups := Group([]models.AccidentReport{r1, r2})

	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, models.SeverityCritical, groups[0].Severity)
	assert.Equal(t, r1.ID, groups[0].Primary.ID)
	assert.InDelta(t, 8.63, groups[0].Latitude, 1e-9)
	assert.InDelta(t, 126.093, groups[0].Longitude, 1e-9)
}

func TestGroup_Singleton(t *testing.T) {
	r := report(14.5995, 120.9842, models.SeverityMinor)

	groups := Group([]models.AccidentReport{r})

	require.Len(t, groups, 1)
	assert.Equal(t, 1, groups[0].Count)
	assert.Equal(t, r.ID, groups[0].Primary.ID)
	assert.Equal(t, []models.AccidentReport{r}, groups[0].Members)
}

func TestGroup_RoundingBoundary(t *testing.T) {
	// Разница меньше 1e-6 схлопывается, больше - нет
	a := report(8.6300001, 126.0930001, models.SeverityMinor)
	b := report(8.6300004, 126.0929996, models.SeverityHigh)
	c := report(8.630002, 126.093, models.SeverityMinor)

	groups := Group([]models.AccidentReport{a, b, c})

	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, models.SeverityHigh, groups[0].Severity)
	assert.Equal(t, 1, groups[1].Count)
}

func TestGroup_SeverityIndependentOfOrder(t *testing.T) {
	sevs := []models.Severity{models.SeverityHigh, models.SeverityMinor, models.SeverityCritical, models.SeverityModerate}
	for shift := range sevs {
		reports := make([]models.AccidentReport, 0, len(sevs))
		for i := range sevs {
			reports = append(reports, report(1, 1, sevs[(i+shift)%len(sevs)]))
		}
		groups := Group(reports)
		require.Len(t, groups, 1)
		assert.Equal(t, models.SeverityCritical, groups[0].Severity)
	}
}

func TestGroup_NoReportDroppedOrDuplicated(t *testing.T) {
	var reports []models.AccidentReport
	for i := 0; i < 50; i++ {
		reports = append(reports, report(float64(i%7), float64(i%3), models.SeverityMinor))
	}

	groups := Group(reports)

	seen := make(map[uuid.UUID]int)
	total := 0
	for _, g := range groups {
		assert.Equal(t, len(g.Members), g.Count)
		total += g.Count
		for _, m := range g.Members {
			seen[m.ID]++
		}
	}
	assert.Equal(t, len(reports), total)
	for _, r := range reports {
		assert.Equal(t, 1, seen[r.ID])
	}
}

func TestGroup_Empty(t *testing.T) {
	assert.Empty(t, Group(nil))
}
