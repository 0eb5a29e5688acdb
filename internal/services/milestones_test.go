package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskforge/backend/pkg/models"
)

func TestProgress_EmptyChecklistIsReady(t *testing.T) {
	p := Progress(nil)
	assert.True(t, p.Ready)
	assert.Equal(t, 0, p.Total)
	assert.Equal(t, 1.0, p.Ratio)
}

func TestProgress_CountsIncomplete(t *testing.T) {
	now := time.Now()
	milestones := []*models.TaskMilestone{
		{Description: "draft", CompletedAt: &now},
		{Description: "review"},
		{Description: "ship"},
	}
	p := Progress(milestones)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 3, p.Total)
	assert.InDelta(t, 1.0/3.0, p.Ratio, 0.001)
	assert.False(t, p.Ready)
	assert.ElementsMatch(t, []string{"review", "ship"}, p.Incomplete)
}

func TestProgress_AllDoneIsReady(t *testing.T) {
	now := time.Now()
	p := Progress([]*models.TaskMilestone{
		{Description: "draft", CompletedAt: &now},
		{Description: "ship", CompletedAt: &now},
	})
	assert.True(t, p.Ready)
	assert.Equal(t, 1.0, p.Ratio)
	assert.Empty(t, p.Incomplete)
}

func TestCanStartWork(t *testing.T) {
	tmpl := "tmpl-1"
	sess := "sess-1"
	empty := ""

	plain := &models.WorkUnit{}
	gated := &models.WorkUnit{ScreeningTemplateID: &tmpl}

	assert.True(t, CanStartWork(plain, &models.Execution{}))
	assert.False(t, CanStartWork(gated, &models.Execution{}))
	assert.False(t, CanStartWork(gated, &models.Execution{ScreeningSessionID: &empty}))
	assert.True(t, CanStartWork(gated, &models.Execution{ScreeningSessionID: &sess}))
}

func TestStaticFormula_Experience(t *testing.T) {
	f := StaticFormula{}
	// complexity 3, no revisions, on time, quality 80: 60 + 5 bonus.
	assert.Equal(t, 65, f.CalculateExperience(3, 0, false, 80))
	// Revisions and lateness deduct.
	assert.Equal(t, 40, f.CalculateExperience(3, 2, true, 70))
	// Floor at 5.
	assert.Equal(t, 5, f.CalculateExperience(1, 4, true, 10))
}

func TestStaticFormula_TierUpgrade(t *testing.T) {
	f := StaticFormula{}

	assert.Nil(t, f.CheckTierUpgrade(models.StudentStats{TasksCompleted: 5, AvgQuality: 90}))

	pro := f.CheckTierUpgrade(models.StudentStats{TasksCompleted: 10, AvgQuality: 75, OnTimeRate: 0.5})
	if assert.NotNil(t, pro) {
		assert.Equal(t, models.TierPro, *pro)
	}

	elite := f.CheckTierUpgrade(models.StudentStats{TasksCompleted: 50, AvgQuality: 90, OnTimeRate: 0.95})
	if assert.NotNil(t, elite) {
		assert.Equal(t, models.TierElite, *elite)
	}
}
