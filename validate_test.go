package gridline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_CleanDocument(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "=A1 * 2", "A3", "text")
	assert.Empty(t, doc.Validate())
}

func TestValidate_SyntaxError(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "=1 +")

	issues := doc.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, ref("A1"), issues[0].CellRef)
	assert.Contains(t, issues[0].Message, "invalid formula")
}

func TestValidate_ErrorsAndTheirEffects(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "0", "B1", "=1 / A1", "C1", "=B1 + 1")

	issues := doc.Validate()
	require.Len(t, issues, 2)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, ref("B1"), issues[0].CellRef)
	assert.Contains(t, issues[0].Message, "#DIV/0!")

	assert.Equal(t, SeverityWarning, issues[1].Severity)
	assert.Equal(t, ref("C1"), issues[1].CellRef)
	assert.Contains(t, issues[1].Message, "because B1 has an error")
	assert.Contains(t, issues[1].String(), "[WARN] C1: ")
}

func TestValidate_BlockedSpill(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "2", "B2", "x", "B1", "=VEC(A1:A2)")

	issues := doc.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, "[ERROR] B1: #SPILL! spill from B1 blocked at B2: cell is not empty", issues[0].String())
}

func TestValidate_LostReference(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "1", "A2", "=A1 + 1")
	require.NoError(t, doc.DeleteRow(0))

	issues := doc.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarning, issues[0].Severity)
	assert.Equal(t, ref("A1"), issues[0].CellRef)
	assert.Contains(t, issues[0].Message, "lost a reference")
}

func TestValidate_UnknownFunction(t *testing.T) {
	doc := newTestDocument(t)
	setCells(t, doc, "A1", "=NOSUCH(1)")

	issues := doc.Validate()
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Contains(t, issues[0].Message, "invalid formula")
}
