package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata.evalgo.org/fields"
)

// TestSlugify tests the deterministic slug transform
func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Simple", input: "Hello World", expected: "hello-world"},
		{name: "Punctuation", input: "Hello, World!", expected: "hello-world"},
		{name: "CollapsedRuns", input: "a  --  b", expected: "a-b"},
		{name: "TrimmedHyphens", input: "--hello--", expected: "hello"},
		{name: "Accents", input: "Café à München", expected: "cafe-a-munchen"},
		{name: "Numbers", input: "Top 10 Posts", expected: "top-10-posts"},
		{name: "AlreadySlug", input: "already-a-slug", expected: "already-a-slug"},
		{name: "Empty", input: "", expected: ""},
		{name: "OnlySymbols", input: "!!!", expected: ""},
		{name: "Sharp", input: "Straße", expected: "strasse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}

func postsBlueprint() *Blueprint {
	return &Blueprint{
		ID:   "bp-1",
		Name: "Posts",
		Slug: "posts",
		Fields: []Field{
			{ID: "f-1", Name: "Title", Key: "title", Type: fields.KindText, Required: true},
			{ID: "f-2", Name: "Body", Key: "body", Type: fields.KindTextarea},
			{ID: "f-3", Name: "Contact", Key: "contact", Type: fields.KindEmail},
		},
		Settings: Settings{Versioning: true, TitleField: "title"},
	}
}

// TestValidateDefinition tests blueprint-level structural checks
func TestValidateDefinition(t *testing.T) {
	engine := NewEngine(fields.NewRegistry())

	tests := []struct {
		name    string
		mutate  func(b *Blueprint)
		wantErr bool
	}{
		{name: "Valid", mutate: func(b *Blueprint) {}},
		{name: "EmptyName", mutate: func(b *Blueprint) { b.Name = "" }, wantErr: true},
		{name: "BadSlug", mutate: func(b *Blueprint) { b.Slug = "Not A Slug" }, wantErr: true},
		{name: "NoFields", mutate: func(b *Blueprint) { b.Fields = nil }, wantErr: true},
		{name: "DuplicateKey", mutate: func(b *Blueprint) { b.Fields[1].Key = "title" }, wantErr: true},
		{name: "EmptyKey", mutate: func(b *Blueprint) { b.Fields[0].Key = "" }, wantErr: true},
		{name: "UnknownKind", mutate: func(b *Blueprint) { b.Fields[0].Type = "hologram" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := postsBlueprint()
			tt.mutate(b)
			errs := engine.ValidateDefinition(b)
			if tt.wantErr {
				assert.NotEmpty(t, errs)
			} else {
				assert.Empty(t, errs)
			}
		})
	}
}

// TestValidateData tests per-field dispatch, required checks and warnings
func TestValidateData(t *testing.T) {
	engine := NewEngine(fields.NewRegistry())
	b := postsBlueprint()

	t.Run("Valid", func(t *testing.T) {
		result := engine.Validate(b, map[string]interface{}{"title": "Hello", "body": "text"})
		assert.True(t, result.OK)
		assert.Empty(t, result.Errors)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		result := engine.Validate(b, map[string]interface{}{"body": "text"})
		assert.False(t, result.OK)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "title", result.Errors[0].Field)
	})

	t.Run("BadEmail", func(t *testing.T) {
		result := engine.Validate(b, map[string]interface{}{"title": "Hello", "contact": "nope"})
		assert.False(t, result.OK)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "contact", result.Errors[0].Field)
	})

	t.Run("UnknownKeyIsWarning", func(t *testing.T) {
		result := engine.Validate(b, map[string]interface{}{"title": "Hello", "extra": 1})
		assert.True(t, result.OK)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("DoesNotMutateInput", func(t *testing.T) {
		data := map[string]interface{}{"title": "Hello", "extra": 1}
		engine.Validate(b, data)
		assert.Equal(t, map[string]interface{}{"title": "Hello", "extra": 1}, data)
	})
}

// TestSerializeDropsUnknownKeys tests serialization over declared fields only
func TestSerializeDropsUnknownKeys(t *testing.T) {
	engine := NewEngine(fields.NewRegistry())
	b := postsBlueprint()

	out, err := engine.Serialize(b, map[string]interface{}{
		"title":   "  Hello  ",
		"contact": "User@Example.COM",
		"extra":   "dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out["title"])
	assert.Equal(t, "user@example.com", out["contact"])
	assert.NotContains(t, out, "extra")
	assert.NotContains(t, out, "body")
}

// TestDestructiveChanges tests rename and removal warnings
func TestDestructiveChanges(t *testing.T) {
	current := postsBlueprint()

	t.Run("RenamedKey", func(t *testing.T) {
		next := postsBlueprint()
		next.Fields[1].Key = "content"
		warnings := destructiveChanges(current, next)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], `"body" renamed to "content"`)
	})

	t.Run("RemovedField", func(t *testing.T) {
		next := postsBlueprint()
		next.Fields = next.Fields[:2]
		warnings := destructiveChanges(current, next)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], `"contact" removed`)
	})

	t.Run("NoChange", func(t *testing.T) {
		assert.Empty(t, destructiveChanges(current, postsBlueprint()))
	})
}

// TestDefaultStatus tests the settings fallback
func TestDefaultStatus(t *testing.T) {
	b := postsBlueprint()
	assert.Equal(t, StatusDraft, b.DefaultStatus())

	b.Settings.DefaultStatus = StatusPublished
	assert.Equal(t, StatusPublished, b.DefaultStatus())

	b.Settings.DefaultStatus = "bogus"
	assert.Equal(t, StatusDraft, b.DefaultStatus())
}
