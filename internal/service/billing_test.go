package service

import (
	"context"
	"testing"

	"studio/internal/entity"
	"studio/internal/media"
	"studio/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioCost(t *testing.T) {
	tests := []struct {
		duration float64
		want     int
	}{
		{duration: 0, want: 1},
		{duration: 0.4, want: 1},
		{duration: 1, want: 1},
		{duration: 1.01, want: 2},
		{duration: 7, want: 7},
		{duration: -3, want: 1},
	}
	for _, tt := range tests {
		if got := AudioCost(tt.duration); got != tt.want {
			t.Errorf("AudioCost(%v) = %d, want %d", tt.duration, got, tt.want)
		}
	}
}

func TestRefundWithoutChargeIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateUser(ctx, &entity.DbUser{ID: "u1", StarsBalance: 2}))
	seedGeneration(t, repo, &entity.DbGeneration{ID: "gen-1", TaskID: "t", Type: entity.GenerationTypePhoto, UserID: "u1"})
	billing := NewBillingAdjuster(repo, repo, privilegedRoles)

	refunded, err := billing.Refund(ctx, "gen-1", ReasonProviderFailed, "nsfw")
	require.NoError(t, err)
	assert.Zero(t, refunded)

	balance, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, balance)
}

func TestRefundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateUser(ctx, &entity.DbUser{ID: "u1", StarsBalance: 10}))
	seedGeneration(t, repo, &entity.DbGeneration{ID: "gen-1", TaskID: "t", Type: entity.GenerationTypeVideo, UserID: "u1"})
	require.NoError(t, repo.AdjustBalance(ctx, entity.CreditAdjustment{UserID: "u1", GenerationID: "gen-1", Kind: entity.CreditKindCharge, Delta: -6}))
	billing := NewBillingAdjuster(repo, repo, privilegedRoles)

	refunded, err := billing.Refund(ctx, "gen-1", ReasonProviderFailed, "")
	require.NoError(t, err)
	assert.Equal(t, 6, refunded)

	refunded, err = billing.Refund(ctx, "gen-1", ReasonProviderFailed, "")
	require.NoError(t, err)
	assert.Zero(t, refunded)

	balance, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestDeductForAudioChargesOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateUser(ctx, &entity.DbUser{ID: "u1", StarsBalance: 20}))
	job := seedGeneration(t, repo, &entity.DbGeneration{ID: "gen-a", TaskID: "t", Type: entity.GenerationTypeAudio, UserID: "u1"})
	billing := NewBillingAdjuster(repo, repo, privilegedRoles)

	charge, err := billing.DeductForAudio(ctx, job, 4.5)
	require.NoError(t, err)
	assert.Equal(t, AudioCharge{Cost: 5, Charged: true}, charge)

	charge, err = billing.DeductForAudio(ctx, job, 4.5)
	require.NoError(t, err)
	assert.False(t, charge.Charged)
	assert.Equal(t, "already_charged", charge.Skipped)

	balance, err := repo.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 15, balance)
}

func TestDeductForAudioReportsEarlierChargeWhenBalanceDrained(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateUser(ctx, &entity.DbUser{ID: "u1", StarsBalance: 10}))
	job := seedGeneration(t, repo, &entity.DbGeneration{ID: "gen-a", TaskID: "t", Type: entity.GenerationTypeAudio, UserID: "u1"})
	billing := NewBillingAdjuster(repo, repo, privilegedRoles)

	charge, err := billing.DeductForAudio(ctx, job, 7)
	require.NoError(t, err)
	require.True(t, charge.Charged)

	// 余额只剩 3，不足以再扣 7，但这是已扣过的同一任务
	charge, err = billing.DeductForAudio(ctx, job, 7)
	require.NoError(t, err)
	assert.Equal(t, AudioCharge{Cost: 7, Skipped: "already_charged"}, charge)
}

func TestDeductForAudioSkipsManager(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.CreateUser(ctx, &entity.DbUser{ID: "m1", Role: "Manager", StarsBalance: 0}))
	job := seedGeneration(t, repo, &entity.DbGeneration{ID: "gen-m", TaskID: "t", Type: entity.GenerationTypeAudio, UserID: "m1"})

	charge, err := NewBillingAdjuster(repo, repo, privilegedRoles).DeductForAudio(ctx, job, 30)
	require.NoError(t, err)
	assert.Equal(t, "privileged_role", charge.Skipped)
	assert.Equal(t, 30, charge.Cost)
}

type fixedProber struct {
	seconds float64
	err     error
}

func (p fixedProber) ProbeDuration(context.Context, []byte, string) (float64, error) {
	return p.seconds, p.err
}

func TestDurationResolverOrder(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		job        *entity.DbGeneration
		status     *provider.TaskStatus
		prober     media.DurationProber
		want       float64
		wantSource DurationSource
	}{
		{
			name:   "provider duration first",
			job:    &entity.DbGeneration{Metadata: map[string]interface{}{"duration": 9.0}},
			status: &provider.TaskStatus{Duration: 4},
			prober: fixedProber{seconds: 8},
			want:   4, wantSource: DurationFromProvider,
		},
		{
			name:   "metadata before probe",
			job:    &entity.DbGeneration{Metadata: map[string]interface{}{"durationSec": "6.5"}},
			status: &provider.TaskStatus{},
			prober: fixedProber{seconds: 8},
			want:   6.5, wantSource: DurationFromMetadata,
		},
		{
			name:   "probe",
			job:    &entity.DbGeneration{Prompt: "hello there"},
			prober: fixedProber{seconds: 8},
			want:   8, wantSource: DurationFromProbe,
		},
		{
			name:   "heuristic when probe fails",
			job:    &entity.DbGeneration{Prompt: "a b c d e f g"},
			prober: fixedProber{err: media.ErrUnsupportedAudio},
			want:   4, wantSource: DurationFromHeuristic,
		},
		{
			name: "empty prompt",
			job:  &entity.DbGeneration{},
			want: 1, wantSource: DurationFromHeuristic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := NewDurationResolver(tt.prober).Resolve(ctx, tt.job, tt.status, nil, "")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}
