package alerts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigboard/internal/clock"
	"gigboard/internal/domain"
	"gigboard/internal/notify"
	"gigboard/internal/realtime"
	"gigboard/internal/store"
	"gigboard/internal/store/memory"
)

func TestMatchSkills(t *testing.T) {
	tests := []struct {
		name    string
		job     []string
		user    []string
		want    float64
		ok      bool
		matched []string
	}{
		{name: "half", job: []string{"Go", "Kubernetes"}, user: []string{"go", "rust"}, want: 50, ok: true, matched: []string{"Go"}},
		{name: "none", job: []string{"Go", "Kubernetes"}, user: []string{"rust"}, want: 0, ok: false},
		{name: "below threshold", job: []string{"Go", "Kubernetes", "AWS"}, user: []string{"GO"}, want: 100.0 / 3, ok: false, matched: []string{"Go"}},
		{name: "full", job: []string{"Go"}, user: []string{" go "}, want: 100, ok: true, matched: []string{"Go"}},
		{name: "duplicate job skills", job: []string{"Go", "go", "Rust"}, user: []string{"go"}, want: 50, ok: true, matched: []string{"Go"}},
		{name: "empty job", job: nil, user: []string{"go"}, want: 0, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := MatchSkills(tt.job, tt.user)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, m.Percentage, 0.001)
			if tt.matched != nil {
				assert.Equal(t, tt.matched, m.Skills)
			}
		})
	}
}

type fixture struct {
	notifier *Notifier
	store    *store.Store
	hub      *realtime.Hub
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memory.New()
	hub := realtime.NewHub(8, nil)
	clk := clock.NewMonotonic(clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))
	svc := notify.NewService(st.Notifications, hub, clk, nil)
	return fixture{notifier: NewNotifier(st.Users, svc, nil), store: st, hub: hub}
}

func (f fixture) addUser(t *testing.T, id string, enabled bool, skills ...string) {
	t.Helper()
	require.NoError(t, f.store.Users.Create(context.Background(), domain.User{
		ID:               id,
		Email:            id + "@example.com",
		Username:         id,
		Role:             domain.RoleFreelancer,
		AlertPreferences: domain.AlertPreferences{Enabled: enabled, Skills: skills},
	}))
}

func TestNotifyJobCreated(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u-go", true, "go", "rust")
	f.addUser(t, "u-off", false, "go")
	f.addUser(t, "u-java", true, "java")
	sub := f.hub.Subscribe("u-go")
	defer sub.Close()

	job := domain.Job{ID: "j-1", ClientID: "c-1", Title: "Platform engineer", Skills: []string{"Go", "Kubernetes"}}
	sent, err := f.notifier.NotifyJobCreated(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	list, err := f.store.Notifications.ListByUser(context.Background(), "u-go")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotificationJobAlert, list[0].Type)
	assert.Contains(t, list[0].Message, "Platform engineer")
	assert.Contains(t, list[0].Message, "Go")

	ev := <-sub.Events()
	assert.Equal(t, realtime.EventJobAlert, ev.Name)
	var payload Payload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "j-1", payload.JobID)
	assert.Equal(t, "Platform engineer", payload.JobTitle)
	assert.Equal(t, list[0].Message, payload.Message)

	for _, id := range []string{"u-off", "u-java"} {
		other, err := f.store.Notifications.ListByUser(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, other)
	}
}

func TestNotifyDedupByTitle(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u-go", true, "go")
	ctx := context.Background()

	first := domain.Job{ID: "j-1", ClientID: "c-1", Title: "Go developer", Skills: []string{"Go"}}
	second := domain.Job{ID: "j-2", ClientID: "c-2", Title: "go developer ", Skills: []string{"Go", "SQL"}}
	prefix := domain.Job{ID: "j-3", ClientID: "c-1", Title: "Go developer (senior)", Skills: []string{"Go"}}

	for _, job := range []domain.Job{first, second, prefix} {
		_, err := f.notifier.NotifyJobCreated(ctx, job)
		require.NoError(t, err)
	}

	list, err := f.store.Notifications.ListByUser(ctx, "u-go")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestOwnJobIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "c-1", true, "go")

	sent, err := f.notifier.NotifyJobCreated(context.Background(), domain.Job{
		ID: "j-1", ClientID: "c-1", Title: "Go developer", Skills: []string{"Go"},
	})
	require.NoError(t, err)
	assert.Zero(t, sent)
}
