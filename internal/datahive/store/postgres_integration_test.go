//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recon/pkg/testutil/containers"
)

const probeTable = "ocms_dh_mom_work_permit"

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(s.postgres.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS ocms_dh_mom_work_permit (
			id_no              text NOT NULL,
			notice_no          text NOT NULL,
			work_permit_no     text,
			date_of_expiry     timestamptz,
			reg_postal_code    text
		)`))
	s.store = NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), probeTable))
}

func (s *PostgresStoreSuite) TestUpsertCreatesThenPatches() {
	ctx := context.Background()
	keys := Fields{"idNo": "F1234567N", "noticeNo": "N1"}
	wp := "WP001"

	created, err := Upsert(ctx, s.store, probeTable, keys, Fields{"workPermitNo": &wp})
	s.Require().NoError(err)
	s.True(created)

	expiry := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	created, err = Upsert(ctx, s.store, probeTable, keys, Fields{"dateOfExpiry": &expiry})
	s.Require().NoError(err)
	s.False(created)

	rows, err := s.store.Query(ctx, probeTable, keys)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("WP001", rows[0]["workPermitNo"])
	s.True(expiry.Equal(rows[0]["dateOfExpiry"].(time.Time)))
	s.Nil(rows[0]["regPostalCode"])
}

func (s *PostgresStoreSuite) TestNilFilterMatchesNull() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, probeTable, Fields{"idNo": "F1", "noticeNo": "N1"}))
	s.Require().NoError(s.store.Create(ctx, probeTable, Fields{"idNo": "F2", "noticeNo": "N2", "regPostalCode": "079903"}))

	n, err := s.store.Patch(ctx, probeTable, Fields{"regPostalCode": nil}, Fields{"workPermitNo": "WP9"})
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBack() {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, probeTable, Fields{"idNo": "F1", "noticeNo": "N1"}); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	rows, err := s.store.Query(ctx, probeTable, Fields{"idNo": "F1"})
	s.Require().NoError(err)
	s.Empty(rows)
}
