package resourcebus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

// S1: plain round trip at a single tier.
func TestPlainRoundTrip(t *testing.T) {
	b := New()
	var log []string
	var mu sync.Mutex
	append1 := func(s string) { mu.Lock(); log = append(log, s); mu.Unlock() }

	err := b.Register(context.Background(), Normal, Resource{
		ID: "R1",
		BeforeCheckpoint: func(context.Context) error {
			append1("B1")
			return nil
		},
		AfterRestore: func(context.Context) error {
			append1("A1")
			return nil
		},
	})
	assert.NilError(t, err)

	assert.NilError(t, b.BeforeCheckpoint(context.Background()))
	assert.NilError(t, b.AfterRestore(context.Background()))
	assert.DeepEqual(t, log, []string{"B1", "A1"})
}

// S2: tier ordering between FILE_DESCRIPTORS and NORMAL.
func TestTierOrdering(t *testing.T) {
	b := New()
	var log []string

	assert.NilError(t, b.Register(context.Background(), FileDescriptors, Resource{
		ID: "R_fd",
		BeforeCheckpoint: func(context.Context) error {
			log = append(log, "FD_before")
			return nil
		},
		AfterRestore: func(context.Context) error {
			log = append(log, "FD_after")
			return nil
		},
	}))
	assert.NilError(t, b.Register(context.Background(), Normal, Resource{
		ID: "R_norm",
		BeforeCheckpoint: func(context.Context) error {
			log = append(log, "NORM_before")
			return nil
		},
		AfterRestore: func(context.Context) error {
			log = append(log, "NORM_after")
			return nil
		},
	}))

	assert.NilError(t, b.BeforeCheckpoint(context.Background()))
	assert.DeepEqual(t, log, []string{"FD_before", "NORM_before"})

	log = nil
	assert.NilError(t, b.AfterRestore(context.Background()))
	assert.DeepEqual(t, log, []string{"NORM_after", "FD_after"})
}

func TestZeroResources(t *testing.T) {
	b := New()
	assert.NilError(t, b.BeforeCheckpoint(context.Background()))
	assert.NilError(t, b.AfterRestore(context.Background()))
}

func TestEachResourceInvokedExactlyOnce(t *testing.T) {
	b := New()
	var beforeCount, afterCount int
	assert.NilError(t, b.Register(context.Background(), Sockets, Resource{
		ID: "R",
		BeforeCheckpoint: func(context.Context) error {
			beforeCount++
			return nil
		},
		AfterRestore: func(context.Context) error {
			afterCount++
			return nil
		},
	}))
	assert.NilError(t, b.BeforeCheckpoint(context.Background()))
	assert.NilError(t, b.AfterRestore(context.Background()))
	assert.Equal(t, beforeCount, 1)
	assert.Equal(t, afterCount, 1)
}

// S4: a blocking-tier registration started concurrently with an in-progress
// checkpoint suspends until AfterRestore completes, and is not invoked for
// the in-progress cycle.
func TestBlockingRegistrationDuringCheckpoint(t *testing.T) {
	b := New()
	started := make(chan struct{})
	release := make(chan struct{})

	assert.NilError(t, b.Register(context.Background(), FileDescriptors, Resource{
		ID: "R1",
		BeforeCheckpoint: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}))

	var invokedThisCycle bool
	registered := make(chan struct{})
	go func() {
		<-started
		err := b.Register(context.Background(), FileDescriptors, Resource{
			ID: "R2",
			BeforeCheckpoint: func(context.Context) error {
				invokedThisCycle = true
				return nil
			},
		})
		assert.Check(t, err == nil)
		close(registered)
	}()

	go func() {
		<-started
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	assert.NilError(t, b.BeforeCheckpoint(context.Background()))
	select {
	case <-registered:
		t.Fatal("registration completed before afterRestore released it")
	case <-time.After(20 * time.Millisecond):
	}

	assert.NilError(t, b.AfterRestore(context.Background()))
	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("registration never completed after afterRestore")
	}
	assert.Check(t, !invokedThisCycle)
}

func TestExceptionAccumulationDoesNotAbortPhase(t *testing.T) {
	b := New()
	var ran []string
	assert.NilError(t, b.Register(context.Background(), Normal, Resource{
		ID: "fails",
		BeforeCheckpoint: func(context.Context) error {
			ran = append(ran, "fails")
			return errors.New("boom")
		},
	}))
	assert.NilError(t, b.Register(context.Background(), Normal, Resource{
		ID: "ok",
		BeforeCheckpoint: func(context.Context) error {
			ran = append(ran, "ok")
			return nil
		},
	}))

	err := b.BeforeCheckpoint(context.Background())
	assert.ErrorContains(t, err, "checkpoint callbacks failed")
	assert.DeepEqual(t, ran, []string{"fails", "ok"})
}
