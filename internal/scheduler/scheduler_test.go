package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRefresher struct {
	calls     int
	refreshed bool
	err       error
}

func (f *fakeRefresher) RefreshIfStale(context.Context) (bool, error) {
	f.calls++
	return f.refreshed, f.err
}

type fakePruner struct {
	maxAge time.Duration
}

func (f *fakePruner) PruneThrottles(maxAge time.Duration) int {
	f.maxAge = maxAge
	return 3
}

func TestNew_RegistersJobs(t *testing.T) {
	tests := []struct {
		name     string
		gallery  GalleryRefresher
		pruner   ThrottlePruner
		wantJobs int
	}{
		{"both jobs", &fakeRefresher{}, &fakePruner{}, 2},
		{"gallery only", &fakeRefresher{}, nil, 1},
		{"nothing", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.gallery, tt.pruner, Options{})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if s.Jobs() != tt.wantJobs {
				t.Errorf("expected %d jobs, got %d", tt.wantJobs, s.Jobs())
			}
		})
	}
}

func TestJobs(t *testing.T) {
	refresher := &fakeRefresher{refreshed: true}
	pruner := &fakePruner{}
	s, err := New(refresher, pruner, Options{ThrottleMaxAge: 7 * time.Minute})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	s.refreshGallery()
	refresher.err = errors.New("disk gone")
	s.refreshGallery()
	if refresher.calls != 2 {
		t.Errorf("expected 2 refresh calls, got %d", refresher.calls)
	}

	s.pruneThrottles()
	if pruner.maxAge != 7*time.Minute {
		t.Errorf("expected max age 7m, got %v", pruner.maxAge)
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeRefresher{}, &fakePruner{}, Options{GalleryRefresh: time.Hour, ThrottlePrune: time.Hour})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.Start()
	s.Stop()
}
