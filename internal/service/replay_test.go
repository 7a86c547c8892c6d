package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mammoth/internal/domain/model"
	apperrors "github.com/target/mammoth/internal/errors"
	"github.com/target/mammoth/internal/mocks"
)

func newReplay(t *testing.T) (*ReplayService, *mocks.MockDispatcher, *mocks.MockOutcomeStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := mocks.NewMockDispatcher(ctrl)
	o := mocks.NewMockOutcomeStore(ctrl)
	svc, err := NewReplayService(ReplayServiceOptions{Dispatcher: d, Outcomes: o})
	require.NoError(t, err)
	return svc, d, o
}

func TestNewReplayService_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := NewReplayService(ReplayServiceOptions{Outcomes: mocks.NewMockOutcomeStore(ctrl)})
	require.Error(t, err)
	_, err = NewReplayService(ReplayServiceOptions{Dispatcher: mocks.NewMockDispatcher(ctrl)})
	require.Error(t, err)
}

func TestReplay_Success(t *testing.T) {
	svc, d, o := newReplay(t)
	ctx := context.Background()

	o.EXPECT().Len(gomock.Any()).Return(int64(2), nil)
	gomock.InOrder(
		o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "1", Status: model.JobStatusCompleted}, nil),
		d.EXPECT().UpdateStatus(gomock.Any(), "1", model.JobStatusCompleted).Return(nil),
		d.EXPECT().MarkHandled(gomock.Any(), "1").Return(nil),
		o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "2", Status: model.JobStatusError}, nil),
		d.EXPECT().UpdateStatus(gomock.Any(), "2", model.JobStatusError).Return(nil),
	)

	res, err := svc.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Replayed: 2}, res)
}

func TestReplay_RespectsLimit(t *testing.T) {
	svc, d, o := newReplay(t)

	o.EXPECT().Len(gomock.Any()).Return(int64(10), nil)
	o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "1", Status: model.JobStatusError}, nil).Times(1)
	d.EXPECT().UpdateStatus(gomock.Any(), "1", model.JobStatusError).Return(nil)

	res, err := svc.Replay(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
}

func TestReplay_RequeuesPermanentFailureAndContinues(t *testing.T) {
	svc, d, o := newReplay(t)

	o.EXPECT().Len(gomock.Any()).Return(int64(2), nil)
	o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "1", Status: model.JobStatusCompleted, Attempts: 3}, nil)
	d.EXPECT().UpdateStatus(gomock.Any(), "1", model.JobStatusCompleted).Return(apperrors.Dispatcher("update status", 404, "no such job"))
	o.EXPECT().Push(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, got model.LostOutcome) error {
		assert.Equal(t, 4, got.Attempts)
		assert.Equal(t, 404, got.StatusCode)
		return nil
	})
	o.EXPECT().Pop(gomock.Any()).Return(nil, nil)

	res, err := svc.Replay(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Requeued: 1}, res)
}

func TestReplay_DropsNonTerminalOutcome(t *testing.T) {
	svc, d, o := newReplay(t)

	o.EXPECT().Len(gomock.Any()).Return(int64(2), nil)
	gomock.InOrder(
		o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "1", Status: model.JobStatusInProgress}, nil),
		o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "2", Status: model.JobStatusError}, nil),
		d.EXPECT().UpdateStatus(gomock.Any(), "2", model.JobStatusError).Return(nil),
	)
	o.EXPECT().Push(gomock.Any(), gomock.Any()).Times(0)
	d.EXPECT().UpdateStatus(gomock.Any(), "1", gomock.Any()).Times(0)

	res, err := svc.Replay(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ReplayResult{Replayed: 1, Dropped: 1}, res)
}

func TestReplay_StopsOnRetryableFailure(t *testing.T) {
	svc, d, o := newReplay(t)

	o.EXPECT().Len(gomock.Any()).Return(int64(5), nil)
	o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "1", Status: model.JobStatusError}, nil).Times(1)
	d.EXPECT().UpdateStatus(gomock.Any(), "1", model.JobStatusError).Return(apperrors.Transport("update status", errors.New("refused")))
	o.EXPECT().Push(gomock.Any(), gomock.Any()).Return(nil)

	res, err := svc.Replay(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
	assert.Equal(t, ReplayResult{Requeued: 1}, res)
}

func TestReplay_MarkHandledFailureStillCounts(t *testing.T) {
	svc, d, o := newReplay(t)

	o.EXPECT().Len(gomock.Any()).Return(int64(1), nil)
	o.EXPECT().Pop(gomock.Any()).Return(&model.LostOutcome{JobID: "1", Status: model.JobStatusCompleted}, nil)
	d.EXPECT().UpdateStatus(gomock.Any(), "1", model.JobStatusCompleted).Return(nil)
	d.EXPECT().MarkHandled(gomock.Any(), "1").Return(errors.New("nope"))

	res, err := svc.Replay(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Replayed)
}

func TestReplay_StoreErrors(t *testing.T) {
	svc, _, o := newReplay(t)
	o.EXPECT().Len(gomock.Any()).Return(int64(0), errors.New("redis down"))

	_, err := svc.Replay(context.Background(), 0)
	require.ErrorContains(t, err, "count lost outcomes")
}
