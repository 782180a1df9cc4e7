package request

import (
	"errors"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/hitseq/packages/core/template"
	"github.com/abdul-hamid-achik/hitseq/packages/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDescriptor(t *testing.T, endpoint, method string, frags []template.Fragment, opts ...Option) *Descriptor {
	t.Helper()
	d, err := NewDescriptor(ID{Endpoint: endpoint, Method: method}, frags, opts...)
	require.NoError(t, err)
	return d
}

func TestNewDescriptor(t *testing.T) {
	rules := []extract.Rule{{Variable: "_stores_post_id", Path: "/id"}}
	d := mustDescriptor(t, "/stores", "Post",
		[]template.Fragment{template.Static{Text: "POST /stores HTTP/1.1\r\n\r\n"}},
		WithPostSend(rules...),
	)

	assert.Equal(t, "POST /stores", d.ID().Key())
	assert.True(t, d.HasPostSend())
	assert.Equal(t, []string{"_stores_post_id"}, d.Writes())
	assert.Empty(t, d.Reads())

	rules[0].Variable = "mutated"
	assert.Equal(t, "_stores_post_id", d.Rules()[0].Variable)
}

func TestNewDescriptor_Invalid(t *testing.T) {
	_, err := NewDescriptor(ID{Endpoint: "/stores"}, nil)
	assert.Error(t, err)

	_, err = NewDescriptor(ID{Endpoint: "/stores", Method: "POST"}, nil,
		WithPostSend(extract.Rule{Path: "/id"}))
	assert.Error(t, err)

	_, err = NewDescriptor(ID{Endpoint: "/stores", Method: "POST"}, nil,
		WithPostSend(extract.Rule{Variable: "id", Path: "/id"}, extract.Rule{Variable: "id", Path: "/uuid"}))
	assert.Error(t, err)
}

func TestDescriptor_NoPostSend(t *testing.T) {
	d := mustDescriptor(t, "/health", "GET", nil)
	assert.False(t, d.HasPostSend())
	assert.Nil(t, d.Rules())
	assert.Nil(t, d.Writes())
}

func TestCollection_AddAndSeal(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Add(mustDescriptor(t, "/stores", "POST", nil)))
	require.NoError(t, c.Add(mustDescriptor(t, "/stores", "GET", nil)))

	err := c.Add(mustDescriptor(t, "/stores", "post", nil))
	assert.True(t, errors.Is(err, ErrDuplicate))

	c.Seal()
	assert.True(t, c.Sealed())
	err = c.Add(mustDescriptor(t, "/orders", "GET", nil))
	assert.ErrorIs(t, err, ErrSealed)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "POST /stores", c.At(0).ID().Key())
	assert.Len(t, c.All(), 2)
}

func TestCollection_Lint(t *testing.T) {
	c := NewCollection()
	reader := mustDescriptor(t, "/stores/{storeId}/order", "POST",
		[]template.Fragment{template.DynamicRef{Variable: "store_id"}})
	writer := mustDescriptor(t, "/stores", "POST", nil,
		WithPostSend(extract.Rule{Variable: "store_id", Path: "/id"}))
	orphan := mustDescriptor(t, "/orders/{orderId}", "GET",
		[]template.Fragment{template.DynamicRef{Variable: "order_id"}})

	require.NoError(t, c.Add(reader))
	require.NoError(t, c.Add(writer))
	require.NoError(t, c.Add(orphan))

	issues := c.Lint()
	require.Len(t, issues, 2)
	assert.Equal(t, 0, issues[0].Index)
	assert.Equal(t, "store_id", issues[0].Variable)
	assert.Contains(t, issues[0].String(), "before its writer POST /stores")
	assert.Equal(t, "order_id", issues[1].Variable)
	assert.Contains(t, issues[1].Message, "no request writes")

	// Lint never reorders.
	assert.Equal(t, reader, c.At(0))
}

func TestCollection_LintDeclared(t *testing.T) {
	c := NewCollection()
	writer := mustDescriptor(t, "/stores", "POST", nil,
		WithPostSend(extract.Rule{Variable: "storeId", Path: "/id"}))
	reader := mustDescriptor(t, "/stores/{storeId}/order", "POST",
		[]template.Fragment{
			template.DynamicRef{Variable: "storeId"},
			template.DynamicRef{Variable: "tenant"},
		})

	require.NoError(t, c.Add(writer))
	require.NoError(t, c.Add(reader))
	assert.Empty(t, c.Declared())

	require.NoError(t, c.Declare("tenantId", "storeId"))
	assert.Equal(t, []string{"storeId", "tenantId"}, c.Declared())

	var undeclared []Issue
	for _, issue := range c.Lint() {
		if strings.Contains(issue.Message, "not declared") {
			undeclared = append(undeclared, issue)
		}
	}
	require.Len(t, undeclared, 1)
	assert.Equal(t, 1, undeclared[0].Index)
	assert.Equal(t, "tenant", undeclared[0].Variable)
	assert.Equal(t, `reads "tenant" which is not declared`, undeclared[0].Message)

	c.Seal()
	assert.ErrorIs(t, c.Declare("late"), ErrSealed)
	assert.Error(t, NewCollection().Declare(""))
}
