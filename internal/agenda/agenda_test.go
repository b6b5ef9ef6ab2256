package agenda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scheduler/internal/models"
)

func TestMirrorDaySortsByTime(t *testing.T) {
	var m Mirror
	m.Replace([]models.Event{
		{ID: 1, Date: "2024-01-01", Time: "18:00"},
		{ID: 2, Date: "2024-01-02", Time: "07:00"},
		{ID: 3, Date: "2024-01-01", Time: "09:30"},
		{ID: 4, Date: "2024-01-01", Time: "09:30"},
	})

	var ids []int64
	for _, ev := range m.Day("2024-01-01") {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []int64{3, 4, 1}, ids)
	assert.Empty(t, m.Day("2024-02-01"))
}

func TestMirrorPatching(t *testing.T) {
	var m Mirror
	m.Replace([]models.Event{{ID: 1, Title: "A", Date: "2024-01-01", Time: "09:00"}})

	m.Add(models.Event{ID: 2, Title: "B", Date: "2024-01-01", Time: "08:00"})
	m.Put(models.Event{ID: 1, Title: "A2", Date: "2024-01-01", Time: "07:00"})
	m.Put(models.Event{ID: 99, Title: "ghost", Date: "2024-01-01", Time: "06:00"})

	day := m.Day("2024-01-01")
	require.Len(t, day, 2)
	assert.Equal(t, "A2", day[0].Title)
	assert.Equal(t, "B", day[1].Title)

	m.Remove(1)
	assert.Equal(t, []models.Event{{ID: 2, Title: "B", Date: "2024-01-01", Time: "08:00"}}, m.Day("2024-01-01"))
}

func TestReplaceCopiesInput(t *testing.T) {
	src := []models.Event{{ID: 1, Title: "A", Date: "2024-01-01"}}
	var m Mirror
	m.Replace(src)
	src[0].Title = "changed"
	assert.Equal(t, "A", m.Day("2024-01-01")[0].Title)
}

func TestCheckRequired(t *testing.T) {
	assert.ErrorIs(t, CheckRequired(models.EventInput{Title: "A", Date: "2024-01-01"}), ErrRequired)
	assert.NoError(t, CheckRequired(models.EventInput{Title: "A", Date: "2024-01-01", Time: "09:00"}))
}

func TestDisplayHelpers(t *testing.T) {
	assert.Equal(t, "2:30 PM", Clock("14:30"))
	assert.Equal(t, "12:05 AM", Clock("00:05"))
	assert.Equal(t, "noon", Clock("noon"))

	assert.Equal(t, "Health", CategoryLabel("health"))
	assert.Equal(t, "Other", CategoryLabel("travel"))
	assert.Equal(t, "Other", CategoryLabel(""))
	assert.Equal(t, "Work", CategoryLabel("work"))
}
