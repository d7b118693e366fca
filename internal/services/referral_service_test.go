package services

import (
	"context"
	"errors"
	"testing"

	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"
)

func TestOnboardingPropagatesToAncestors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rootWallet := env.chain.register(1, 0, "root")
	aWallet := env.chain.register(2, 1, "alice")
	bWallet := env.chain.register(3, 2, "bob")

	if _, err := env.auth.RegisterOwner(ctx, rootWallet, "root"); err != nil {
		t.Fatalf("RegisterOwner failed: %v", err)
	}

	a, isNew, err := env.auth.LoginOrRegister(ctx, aWallet)
	if err != nil {
		t.Fatalf("LoginOrRegister(A) failed: %v", err)
	}
	if !isNew || a.UserID != 2 || a.ReferredBy == nil || *a.ReferredBy != 1 {
		t.Fatalf("unexpected user A: %+v (new=%v)", a, isNew)
	}

	if _, _, err := env.auth.LoginOrRegister(ctx, bWallet); err != nil {
		t.Fatalf("LoginOrRegister(B) failed: %v", err)
	}

	root := env.mustUser(t, 1)
	a = env.mustUser(t, 2)
	b := env.mustUser(t, 3)

	if a.TotalTeam != 1 || a.TotalPartners != 1 || a.DailyTeam != 1 || a.DailyPartners != 1 {
		t.Errorf("A counters: team=%d partners=%d dailyTeam=%d dailyPartners=%d",
			a.TotalTeam, a.TotalPartners, a.DailyTeam, a.DailyPartners)
	}
	if root.TotalTeam != 2 || root.TotalPartners != 1 {
		t.Errorf("root counters: team=%d partners=%d", root.TotalTeam, root.TotalPartners)
	}
	if root.DailyTeam != 2 || root.DailyPartners != 1 {
		t.Errorf("root daily counters: team=%d partners=%d", root.DailyTeam, root.DailyPartners)
	}
	if b.TotalTeam != 0 || b.CurrentActiveSlot != 0 {
		t.Errorf("B should start empty, got team=%d slot=%d", b.TotalTeam, b.CurrentActiveSlot)
	}
	if env.trigger.calls != 2 {
		t.Errorf("expected a backfill trigger per registration, got %d", env.trigger.calls)
	}

	// Scramble the counters and verify the sweep recomputes the same totals from scratch
	env.db.Model(&models.User{}).Where("1 = 1").Updates(map[string]interface{}{"total_team": 99, "total_partners": 99})
	if err := env.referral.ReconcileTeams(ctx); err != nil {
		t.Fatalf("ReconcileTeams failed: %v", err)
	}

	want := map[uint][2]int64{1: {2, 1}, 2: {1, 1}, 3: {0, 0}}
	for id, counts := range want {
		u := env.mustUser(t, id)
		if u.TotalTeam != counts[0] || u.TotalPartners != counts[1] {
			t.Errorf("user %d after reconcile: team=%d partners=%d, want %v", id, u.TotalTeam, u.TotalPartners, counts)
		}
	}
}

func TestLoginOrRegisterIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.chain.register(1, 0, "root")
	aWallet := env.chain.register(2, 1, "alice")
	env.seedUser(t, 1, nil, true)

	if _, isNew, err := env.auth.LoginOrRegister(ctx, aWallet); err != nil || !isNew {
		t.Fatalf("first login: new=%v err=%v", isNew, err)
	}

	env.chain.setIncome(aWallet, 40)
	for i := 0; i < 2; i++ {
		user, isNew, err := env.auth.LoginOrRegister(ctx, aWallet)
		if err != nil {
			t.Fatalf("repeat login failed: %v", err)
		}
		if isNew {
			t.Error("known wallet must not be reported as new")
		}
		if user.Income.Total.IntPart() != 40 {
			t.Errorf("expected refreshed income 40, got %s", user.Income.Total)
		}
	}

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 users, got %d", count)
	}
	if root := env.mustUser(t, 1); root.TotalTeam != 1 {
		t.Errorf("repeat logins must not bump counters, root team=%d", root.TotalTeam)
	}
	if env.trigger.calls != 1 {
		t.Errorf("only the registration triggers backfill, got %d", env.trigger.calls)
	}
}

func TestLoginOrRegisterErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.auth.LoginOrRegister(ctx, walletFor(42)); !errors.Is(err, ErrNotFound) {
		t.Errorf("unregistered wallet: expected ErrNotFound, got %v", err)
	}

	env.chain.err = errors.New("rpc down")
	if _, _, err := env.auth.LoginOrRegister(ctx, walletFor(42)); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("rpc failure: expected ErrUpstreamUnavailable, got %v", err)
	}

	env.chain.err = nil
	wallet := env.chain.register(5, 0, "orphan")
	env.trigger.err = errors.New("queue down")
	if _, isNew, err := env.auth.LoginOrRegister(ctx, wallet); err != nil || !isNew {
		t.Errorf("backfill trigger failure must not fail login: new=%v err=%v", isNew, err)
	}
}

func TestRegisterOwnerConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner, err := env.auth.RegisterOwner(ctx, walletFor(1), "root")
	if err != nil {
		t.Fatalf("RegisterOwner failed: %v", err)
	}
	if !owner.IsOwner || owner.UserID != OwnerUserID || owner.Role != models.RoleAdmin || owner.ReferredBy != nil {
		t.Errorf("unexpected owner: %+v", owner)
	}

	if _, err := env.auth.RegisterOwner(ctx, walletFor(9), "second"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for a second owner, got %v", err)
	}
}

func TestBackfillMissingUsersAndReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.chain.register(1, 0, "root")
	env.chain.register(2, 1, "alice")
	env.chain.register(3, 2, "bob")
	wallet4 := env.chain.register(4, 2, "carol")

	env.seedUser(t, 1, nil, false)

	// User 4 arrives before its referrer is known, so nothing is credited
	if _, _, err := env.auth.LoginOrRegister(ctx, wallet4); err != nil {
		t.Fatalf("LoginOrRegister failed: %v", err)
	}

	missing, err := env.referral.MissingUserIDs(ctx)
	if err != nil {
		t.Fatalf("MissingUserIDs failed: %v", err)
	}
	if len(missing) != 2 || missing[0] != 2 || missing[1] != 3 {
		t.Fatalf("expected gap set [2 3], got %v", missing)
	}

	created, err := env.referral.BackfillMissingUsers(ctx)
	if err != nil {
		t.Fatalf("BackfillMissingUsers failed: %v", err)
	}
	if created != 2 {
		t.Errorf("expected 2 users created, got %d", created)
	}

	// Incremental counters missed user 4's join
	if root := env.mustUser(t, 1); root.TotalTeam != 2 || root.TotalPartners != 1 {
		t.Errorf("root before reconcile: team=%d partners=%d", root.TotalTeam, root.TotalPartners)
	}

	again, err := env.referral.BackfillMissingUsers(ctx)
	if err != nil || again != 0 {
		t.Errorf("second backfill should be a no-op, created=%d err=%v", again, err)
	}

	if err := env.referral.ReconcileTeams(ctx); err != nil {
		t.Fatalf("ReconcileTeams failed: %v", err)
	}

	want := map[uint][2]int64{1: {3, 1}, 2: {2, 2}, 3: {0, 0}, 4: {0, 0}}
	for id, counts := range want {
		u := env.mustUser(t, id)
		if u.TotalTeam != counts[0] || u.TotalPartners != counts[1] {
			t.Errorf("user %d: team=%d partners=%d, want %v", id, u.TotalTeam, u.TotalPartners, counts)
		}
	}

	// Every non-root user reaches the root
	for id := uint(2); id <= 4; id++ {
		u := env.mustUser(t, id)
		for hops := 0; u.ReferredBy != nil; hops++ {
			if hops > 4 {
				t.Fatalf("user %d does not reach the root", id)
			}
			u = env.mustUser(t, *u.ReferredBy)
		}
		if u.UserID != 1 {
			t.Errorf("user %d reached %d instead of the root", id, u.UserID)
		}
	}
}

func TestBackfillCollectsFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.chain.register(2, 1, "alice")
	env.seedUser(t, 1, nil, false)
	env.seedUser(t, 4, ref(1), false)

	// id 3 has no on-chain record, id 2 still gets created
	created, err := env.referral.BackfillMissingUsers(ctx)
	if created != 1 {
		t.Errorf("expected 1 user created, got %d", created)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected joined ErrNotFound for id 3, got %v", err)
	}
}

func TestPropagateTeamStopsEarly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.seedUser(t, 1, nil, false)
	env.seedUser(t, 2, ref(1), false)
	env.seedUser(t, 3, ref(2), false)
	env.seedUser(t, 10, ref(99), false)
	env.seedUser(t, 11, ref(10), false)

	steps, err := env.referral.PropagateTeam(ctx, 3, ActivationDelta)
	if err != nil || steps != 2 {
		t.Fatalf("full walk: steps=%d err=%v", steps, err)
	}
	if env.mustUser(t, 1).ActiveTeam != 1 || env.mustUser(t, 2).ActiveTeam != 1 {
		t.Error("expected every ancestor to receive the increment")
	}
	if env.mustUser(t, 3).ActiveTeam != 0 {
		t.Error("propagation must start at the parent")
	}

	steps, err = env.referral.PropagateTeam(ctx, 11, JoinDelta)
	if !errors.Is(err, ErrPartialPropagation) {
		t.Fatalf("expected ErrPartialPropagation, got %v", err)
	}
	if steps != 1 || env.mustUser(t, 10).TotalTeam != 1 {
		t.Errorf("expected the walk to persist the step before the gap, steps=%d", steps)
	}

	// 20 -> 21 -> 20
	env.seedUser(t, 20, ref(21), false)
	env.seedUser(t, 21, ref(20), false)
	if _, err := env.referral.PropagateTeam(ctx, 20, JoinDelta); !errors.Is(err, ErrPartialPropagation) {
		t.Errorf("expected cycle to end the walk, got %v", err)
	}

	if _, err := env.referral.PropagateTeam(ctx, 500, JoinDelta); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown start, got %v", err)
	}
}

func TestComputeTeamCountersDeepChain(t *testing.T) {
	const depth = 2000

	nodes := make([]repository.TreeNode, 0, depth)
	nodes = append(nodes, repository.TreeNode{UserID: 1, IsActive: true})
	for id := uint(2); id <= depth; id++ {
		nodes = append(nodes, repository.TreeNode{UserID: id, ReferredBy: ref(id - 1), IsActive: id%2 == 0})
	}

	counters := ComputeTeamCounters(nodes)

	root := counters[1]
	if root.TotalTeam != depth-1 || root.TotalPartners != 1 {
		t.Errorf("root: team=%d partners=%d", root.TotalTeam, root.TotalPartners)
	}
	if root.ActiveTeam != depth/2 {
		t.Errorf("root active team=%d, want %d", root.ActiveTeam, depth/2)
	}
	if leaf := counters[depth]; leaf.TotalTeam != 0 || leaf.TotalPartners != 0 {
		t.Errorf("leaf: %+v", leaf)
	}
}

func TestComputeTeamCountersSurvivesCycle(t *testing.T) {
	nodes := []repository.TreeNode{
		{UserID: 1},
		{UserID: 2, ReferredBy: ref(3)},
		{UserID: 3, ReferredBy: ref(2)},
	}

	counters := ComputeTeamCounters(nodes)
	if counters[2].TotalTeam != 1 || counters[3].TotalTeam != 1 {
		t.Errorf("unexpected counters in cycle: %+v", counters)
	}
}
