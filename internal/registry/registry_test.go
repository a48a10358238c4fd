package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Register_Then_Unregister_Leaves_No_Entry(t *testing.T) {
	req := require.New(t)
	reg := New()

	reg.Register("c1")
	req.Equal([]string{"c1"}, reg.ListConnections())

	reg.Unregister("c1")
	req.Empty(reg.ListConnections())
	req.Zero(reg.Len())
}

func Test_Unregister_Absent_Id_Is_Noop(t *testing.T) {
	reg := New()
	reg.Unregister("never-registered")
	require.Zero(t, reg.Len())
}

func Test_Display_Name_Last_Write_Wins(t *testing.T) {
	req := require.New(t)
	reg := New()

	reg.Register("c1")
	name, ok := reg.DisplayName("c1")
	req.True(ok)
	req.Empty(name)

	reg.SetDisplayName("c1", "alice")
	name, _ = reg.DisplayName("c1")
	req.Equal("alice", name)

	reg.SetDisplayName("c1", "bob")
	name, _ = reg.DisplayName("c1")
	req.Equal("bob", name)
}

func Test_Display_Name_For_Unknown_Connection_Is_Noop(t *testing.T) {
	req := require.New(t)
	reg := New()

	reg.SetDisplayName("ghost", "alice")

	_, ok := reg.DisplayName("ghost")
	req.False(ok)
	req.Zero(reg.Len())
}

func Test_Duplicate_Register_Keeps_Single_Entry(t *testing.T) {
	req := require.New(t)
	reg := New()

	reg.Register("c1")
	reg.SetDisplayName("c1", "alice")
	reg.Register("c1")

	req.Equal(1, reg.Len())
	// Re-registering is an overwrite, so the announced name is gone.
	name, ok := reg.DisplayName("c1")
	req.True(ok)
	req.Empty(name)
}

func Test_List_Connections_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	reg := New()

	reg.Register("c1")
	snapshot := reg.ListConnections()
	reg.Unregister("c1")

	req.Equal([]string{"c1"}, snapshot)
	req.Empty(reg.ListConnections())
}

func Test_Concurrent_Point_Mutations(t *testing.T) {
	reg := New()

	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				reg.Register(id)
				reg.SetDisplayName(id, "name")
				reg.ListConnections()
				reg.Unregister(id)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, reg.Len())
}
