package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestPairCacheKey(t *testing.T) {
	p := Pair{Identifier: "S1234567A", CaseReference: "N-1"}
	assert.Equal(t, "S1234567A|N-1", p.CacheKey())
}

func TestUniqueIdentifiers(t *testing.T) {
	pairs := []Pair{
		{Identifier: "S1234567A", CaseReference: "N-1"},
		{Identifier: "E7654321", CaseReference: "N-2"},
		{Identifier: "S1234567A", CaseReference: "N-3"},
	}

	assert.Equal(t, []string{"S1234567A", "E7654321"}, UniqueIdentifiers(pairs))
	assert.Empty(t, UniqueIdentifiers(nil))
}

func TestParseClass(t *testing.T) {
	c, ok := ParseClass(" fin ")
	require.True(t, ok)
	assert.Equal(t, ClassFIN, c)

	_, ok = ParseClass("passport")
	assert.False(t, ok)
}

func TestMergedFactsStamp(t *testing.T) {
	death := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	merged := MergedFacts{
		Death: &DeathFact{Subject: Subject{Identifier: "S1234567A"}, DateOfDeath: death},
		WorkAuthorization: &WorkAuthorizationFact{
			Subject: Subject{Identifier: "S1234567A"},
			Kind:    WorkPassEP,
			Address: &Address{Block: ptr("10")},
		},
		Custody: []CustodyFact{{Subject: Subject{Identifier: "S1234567A"}, CustodyStatus: ptr("IN")}},
	}

	a := merged.Stamp("N-1")
	b := merged.Stamp("N-2")

	t.Run("each copy carries its own case reference", func(t *testing.T) {
		assert.Equal(t, "N-1", a.Death.CaseReference)
		assert.Equal(t, "N-2", b.Death.CaseReference)
		assert.Equal(t, "N-1", a.Custody[0].CaseReference)
		assert.Equal(t, "N-2", b.Custody[0].CaseReference)
	})

	t.Run("source facts are not modified", func(t *testing.T) {
		assert.Empty(t, merged.Death.CaseReference)
		assert.Empty(t, merged.Custody[0].CaseReference)
	})

	t.Run("nested addresses are not shared", func(t *testing.T) {
		*a.WorkAuthorization.Address.Block = "99"
		a.WorkAuthorization.Address.Floor = ptr("01")
		assert.Nil(t, b.WorkAuthorization.Address.Floor)
		assert.Nil(t, merged.WorkAuthorization.Address.Floor)
	})

	t.Run("absent categories stay absent", func(t *testing.T) {
		assert.Nil(t, a.Conversion)
		assert.Nil(t, a.Welfare)
	})
}

func TestAddressIsEmpty(t *testing.T) {
	assert.True(t, (*Address)(nil).IsEmpty())
	assert.True(t, (&Address{Block: ptr("  "), PostalCode: ptr("")}).IsEmpty())
	assert.False(t, (&Address{Street: ptr("ORCHARD RD")}).IsEmpty())
}

func TestCompanyListed(t *testing.T) {
	assert.True(t, (&CompanyFact{EntityType: ptr("LC")}).Listed())
	assert.False(t, (&CompanyFact{EntityType: ptr("LP")}).Listed())
	assert.False(t, (*CompanyFact)(nil).Listed())
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "TS-SYS", CodeSystemError.String())
	assert.Equal(t, "PS-RIP", CodeDeceasedAfterOffence.String())
}

func TestRunSummaryCodesSurviveJSON(t *testing.T) {
	in := RunSummary{RunID: "r1", Results: []ConsolidatedResult{{
		CacheKey: "S1|N1",
		Codes:    []StatusCode{CodeDeceasedBeforeOffence, CodeSystemError},
	}}}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"codes":["PS-RP2","TS-SYS"]`)

	var out RunSummary
	require.NoError(t, json.Unmarshal(raw, &out))
	res, ok := out.Result("S1|N1")
	require.True(t, ok)
	assert.Equal(t, in.Results[0].Codes, res.Codes)
}

func TestStatusCodeUnmarshalRejectsGarbage(t *testing.T) {
	var c StatusCode
	assert.Error(t, c.UnmarshalText([]byte("TSSYS")))
	assert.Error(t, c.UnmarshalText([]byte("-SYS")))
}
