package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch within deadline")
		return nil
	}
}

func TestDebouncerCoalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Op
		want []Op // nil means the path is elided entirely
	}{
		{"create then modify keeps create", []Op{OpCreate, OpModify}, []Op{OpCreate}},
		{"create then delete elides", []Op{OpCreate, OpDelete}, nil},
		{"modify then delete keeps delete", []Op{OpModify, OpDelete}, []Op{OpDelete}},
		{"delete then create becomes modify", []Op{OpDelete, OpCreate}, []Op{OpModify}},
		{"modify twice stays modify", []Op{OpModify, OpModify}, []Op{OpModify}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "a.go", Op: op})
			}
			if tt.want == nil {
				select {
				case batch := <-d.Output():
					t.Fatalf("unexpected batch %v", batch)
				case <-time.After(100 * time.Millisecond):
				}
				return
			}
			batch := receiveBatch(t, d)
			require.Len(t, batch, len(tt.want))
			for i, op := range tt.want {
				assert.Equal(t, op, batch[i].Op)
			}
		})
	}
}

func TestDebouncerBatchesSortedByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()
	d.Add(FileEvent{Path: "zeta.go", Op: OpModify})
	d.Add(FileEvent{Path: "alpha.go", Op: OpCreate})
	d.Add(FileEvent{Path: "mid.go", Op: OpDelete})

	batch := receiveBatch(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "alpha.go", batch[0].Path)
	assert.Equal(t, "mid.go", batch[1].Path)
	assert.Equal(t, "zeta.go", batch[2].Path)
}

func TestDebouncerGitignoreChangeDominates(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()
	d.Add(FileEvent{Path: ".gitignore", Op: OpGitignoreChange})
	d.Add(FileEvent{Path: ".gitignore", Op: OpModify})

	batch := receiveBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpGitignoreChange, batch[0].Op)
}

func TestDebouncerWindowResetsOnAdd(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()
	d.Add(FileEvent{Path: "a.go", Op: OpModify})
	time.Sleep(40 * time.Millisecond)
	d.Add(FileEvent{Path: "b.go", Op: OpModify})

	// Both land in one batch: the second add pushed the flush out.
	batch := receiveBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerStopClosesOutput(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()
	d.Stop()
	_, ok := <-d.Output()
	assert.False(t, ok)
	d.Add(FileEvent{Path: "a.go", Op: OpCreate}) // must not panic
}
