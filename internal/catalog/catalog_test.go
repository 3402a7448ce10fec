package catalog

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceServerToolsAndLookup(t *testing.T) {
	c := New()

	c.ReplaceServerTools("srv-1", "weather", []mcp.Tool{
		{Name: "lookup", Description: "look up weather"},
		{Name: "forecast", Description: "get forecast"},
	})

	entry, err := c.Lookup("weather.lookup")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", entry.ServerID)
	assert.Equal(t, "lookup", entry.ToolName)

	all := c.List()
	assert.Len(t, all, 2)
}

func TestListAndListServerAreLexicographicallyOrdered(t *testing.T) {
	c := New()
	c.ReplaceServerTools("srv-1", "zoo", []mcp.Tool{{Name: "b"}, {Name: "a"}})
	c.ReplaceServerTools("srv-2", "air", []mcp.Tool{{Name: "z"}})

	all := c.List()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"air.z", "zoo.a", "zoo.b"}, []string{all[0].QualifiedName(), all[1].QualifiedName(), all[2].QualifiedName()})

	server := c.ListServer("srv-1")
	require.Len(t, server, 2)
	assert.Equal(t, "zoo.a", server[0].QualifiedName())
	assert.Equal(t, "zoo.b", server[1].QualifiedName())
}

func TestReplaceServerToolsDropsDuplicateNamesLastWriteWins(t *testing.T) {
	c := New()
	c.ReplaceServerTools("srv-1", "weather", []mcp.Tool{
		{Name: "lookup", Description: "first"},
		{Name: "lookup", Description: "second"},
	})

	entries := c.ListServer("srv-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Tool.Description)
}

func TestReplaceServerToolsClearsOnEmpty(t *testing.T) {
	c := New()
	c.ReplaceServerTools("srv-1", "weather", []mcp.Tool{{Name: "lookup"}})
	c.ReplaceServerTools("srv-1", "weather", nil)

	assert.Empty(t, c.ListServer("srv-1"))
}

func TestRemoveServer(t *testing.T) {
	c := New()
	c.ReplaceServerTools("srv-1", "weather", []mcp.Tool{{Name: "lookup"}})
	c.RemoveServer("srv-1")

	_, err := c.Lookup("weather.lookup")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLookupNotFound(t *testing.T) {
	c := New()
	_, err := c.Lookup("missing.tool")
	require.ErrorIs(t, err, ErrNotFound)
}
