// File: internal/store/helpers_test.go
package store

import (
	"time"

	"github.com/xkilldash9x/droidpilot/api/schemas"
)

// sampleEpisode builds a terminated two-step episode exercising every field
// that has to survive persistence.
func sampleEpisode(id string, started time.Time) *schemas.Episode {
	finished := started.Add(42 * time.Second)
	box := schemas.Box{{500, 920}, {580, 1000}}
	pos := schemas.Point{540, 960}
	return &schemas.Episode{
		EpisodeID:        id,
		Phone:            "Xiaomi 23049RAD8C",
		OS:               "Android 14",
		ScreenResolution: [2]int{1080, 2400},
		Query:            "打开饿了么搜索麦当劳",
		RawQuery:         "打开饿了么搜索麦当劳（测试）",
		Status:           schemas.ReasonCompleted,
		StartedAt:        started,
		FinishedAt:       &finished,
		Data: []schemas.StepRecord{
			{
				Step:        1,
				Screenshot:  "1-1.png",
				XML:         "1-1.xml",
				Observation: "Home screen with app icons",
				Plan: []schemas.PlanItem{
					{Description: "open the app", Type: schemas.ActionOpen, App: "饿了么", Package: "me.ele"},
				},
				Launch:     []schemas.LaunchAttempt{{Tier: 1, Status: "succeeded", Package: "me.ele"}},
				StartedAt:  started,
				DurationMS: 5100,
			},
			{
				Step:        2,
				Screenshot:  "1-2.png",
				XML:         "1-2.xml",
				Label:       "1-2_label.png",
				Observation: "Search bar visible",
				Plan: []schemas.PlanItem{
					{Description: "tap search", Type: schemas.ActionTap, Position: &pos, Box: &box, Times: 1},
					{Description: "done", Type: schemas.ActionEnd},
				},
				Resolved:   []schemas.ResolvedTarget{{Item: 0, Position: pos, Box: &box, Source: "position"}},
				Completed:  true,
				StartedAt:  started.Add(6 * time.Second),
				DurationMS: 4200,
			},
		},
	}
}
