package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type errMap map[int]bool

func runRunner(t *testing.T, r *Runner, errs errMap) (map[int]int, error) {
	t.Helper()
	l := sync.Mutex{}
	completed := map[int]int{}
	r.Process = func(ctx context.Context, id int) error {
		time.Sleep(10 * time.Millisecond)
		l.Lock()
		completed[id]++
		l.Unlock()
		if errs[id] {
			return fmt.Errorf("err: %d", id)
		}
		return nil
	}
	err := r.Solve(context.Background())
	for i, c := range completed {
		require.Equalf(t, 1, c, "node %d processed more than once", i)
	}
	return completed, err
}

func TestRunnerN(t *testing.T) {
	r := &Runner{
		Concurrency: 2,
		Nodes: map[int][]int{
			1: {},
			2: {1, 3},
			3: {},
			4: {3},
			5: {4},
			6: {4},
			7: {4},
			8: {4},
		},
	}

	completed, err := runRunner(t, r, errMap{})
	require.NoError(t, err)
	require.Len(t, completed, len(r.Nodes))
}

func TestRunnerErr(t *testing.T) {
	r := &Runner{
		Concurrency: 1,
		Nodes: map[int][]int{
			1: {},
			2: {1, 3},
			3: {},
		},
	}

	_, err := runRunner(t, r, errMap{3: true})
	require.Error(t, err)
}

func TestRunnerCircular(t *testing.T) {
	r := &Runner{
		Concurrency: 1,
		Nodes: map[int][]int{
			3: {},
			1: {2, 3},
			2: {1},
		},
	}

	_, err := runRunner(t, r, errMap{})
	require.ErrorIs(t, err, ErrUnsolvable)
}

func TestRunnerNoEdges(t *testing.T) {
	nodes := map[int][]int{}
	for i := 0; i < 20; i++ {
		nodes[i] = nil
	}
	r := &Runner{Concurrency: 4, Nodes: nodes}
	completed, err := runRunner(t, r, errMap{})
	require.NoError(t, err)
	require.Len(t, completed, 20)
}

func TestRunnerEmpty(t *testing.T) {
	r := &Runner{Concurrency: 1, Nodes: map[int][]int{}}
	_, err := runRunner(t, r, errMap{})
	require.NoError(t, err)
}
