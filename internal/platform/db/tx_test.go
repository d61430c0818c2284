package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type recordingTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *recordingTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *recordingTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type recordingBeginner struct {
	tx  *recordingTx
	err error
}

func (b *recordingBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	if opts.IsoLevel != pgx.RepeatableRead {
		return nil, errors.New("unexpected isolation level")
	}
	b.tx = &recordingTx{}
	return b.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	b := &recordingBeginner{}
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error { return nil }))
	require.True(t, b.tx.committed)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	b := &recordingBeginner{}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	b := &recordingBeginner{}
	require.Panics(t, func() {
		_ = WithTx(context.Background(), b, func(pgx.Tx) error { panic("fn blew up") })
	})
	require.False(t, b.tx.committed)
	require.True(t, b.tx.rolledBack)
}

func TestWithTxBeginError(t *testing.T) {
	b := &recordingBeginner{err: errors.New("no connection")}
	err := WithTx(context.Background(), b, func(pgx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorContains(t, err, "begin tx")
}
