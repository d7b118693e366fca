package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"matrix-sync/internal/blockchain"
	"matrix-sync/internal/models"
	"matrix-sync/internal/repository"
)

// TeamDelta is a set of increments applied to one user's team counters
type TeamDelta struct {
	Team          int64
	Partners      int64
	DailyTeam     int64
	DailyPartners int64
	Active        int64
}

var (
	// DirectReferralDelta is applied to the referrer of a newly joined user
	DirectReferralDelta = TeamDelta{Team: 1, Partners: 1, DailyTeam: 1, DailyPartners: 1}
	// JoinDelta is propagated to every ancestor above the referrer of a newly joined user
	JoinDelta = TeamDelta{Team: 1, DailyTeam: 1}
	// ActivationDelta is propagated to every ancestor of a user on first activation
	ActivationDelta = TeamDelta{Active: 1}
)

func (d TeamDelta) columns() map[string]int64 {
	cols := make(map[string]int64, 5)
	if d.Team != 0 {
		cols["total_team"] = d.Team
	}
	if d.Partners != 0 {
		cols["total_partners"] = d.Partners
	}
	if d.DailyTeam != 0 {
		cols["daily_team"] = d.DailyTeam
	}
	if d.DailyPartners != 0 {
		cols["daily_partners"] = d.DailyPartners
	}
	if d.Active != 0 {
		cols["active_team"] = d.Active
	}
	return cols
}

// ReferralService maintains the referral forest and its aggregate counters
type ReferralService struct {
	repo  *repository.Repository
	chain ChainReader
}

// NewReferralService creates a new ReferralService
func NewReferralService(repo *repository.Repository, chain ChainReader) *ReferralService {
	return &ReferralService{repo: repo, chain: chain}
}

// PropagateTeam applies delta to every ancestor of userID, starting at its parent and
// ending at the root. Each ancestor is updated on its own, so a failed walk leaves the
// already visited ancestors incremented. Returns the number of ancestors updated.
func (s *ReferralService) PropagateTeam(ctx context.Context, userID uint, delta TeamDelta) (int, error) {
	return s.propagateTeamIn(ctx, s.repo, userID, delta)
}

// propagateTeamIn walks the ancestors of userID through repo, which may be bound to a transaction
func (s *ReferralService) propagateTeamIn(ctx context.Context, repo *repository.Repository, userID uint, delta TeamDelta) (int, error) {
	cols := delta.columns()

	user, err := repo.GetUserByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user == nil {
		return 0, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	visited := map[uint]bool{userID: true}
	parent := user.ReferredBy
	steps := 0

	for parent != nil {
		current := *parent
		if visited[current] {
			log.Printf("[Referral] Cycle detected at user %d while propagating from %d", current, userID)
			return steps, fmt.Errorf("cycle at user %d: %w", current, ErrPartialPropagation)
		}
		visited[current] = true

		ancestor, err := repo.GetUserByUserID(ctx, current)
		if err != nil {
			return steps, fmt.Errorf("failed to load ancestor %d: %w", current, err)
		}
		if ancestor == nil {
			return steps, fmt.Errorf("ancestor %d missing: %w", current, ErrPartialPropagation)
		}

		if _, err := repo.IncrementUserCounters(ctx, current, cols); err != nil {
			return steps, fmt.Errorf("failed to update ancestor %d: %w", current, err)
		}
		steps++
		parent = ancestor.ReferredBy
	}

	return steps, nil
}

// linkToReferrer credits the referrer of a newly created user and propagates the join upward
func (s *ReferralService) linkToReferrer(ctx context.Context, user *models.User) error {
	if user.IsRoot() {
		return nil
	}
	referrerID := *user.ReferredBy

	found, err := s.repo.IncrementUserCounters(ctx, referrerID, DirectReferralDelta.columns())
	if err != nil {
		return fmt.Errorf("failed to credit referrer %d: %w", referrerID, err)
	}
	if !found {
		log.Printf("[Referral] Referrer %d of user %d not known yet", referrerID, user.UserID)
		return nil
	}

	if _, err := s.PropagateTeam(ctx, referrerID, JoinDelta); err != nil {
		if errors.Is(err, ErrPartialPropagation) {
			log.Printf("[Referral] Join propagation for user %d stopped early: %v", user.UserID, err)
			return nil
		}
		return err
	}
	return nil
}

// MissingUserIDs returns the ids in [1, max known id] that have no local user
func (s *ReferralService) MissingUserIDs(ctx context.Context) ([]uint, error) {
	maxID, err := s.repo.MaxUserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read max user id: %w", err)
	}

	known, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}

	present := make(map[uint]struct{}, len(known))
	for _, id := range known {
		present[id] = struct{}{}
	}

	missing := make([]uint, 0)
	for id := uint(1); id <= maxID; id++ {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// BackfillMissingUsers creates every user of the gap set from its on-chain record.
// Ids are processed in ascending order so a referrer is created before its referrals.
// A failure for one id does not stop the others; all failures are returned joined.
func (s *ReferralService) BackfillMissingUsers(ctx context.Context) (int, error) {
	missing, err := s.MissingUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	log.Printf("[Backfill] %d missing users: %v", len(missing), missing)

	var errs []error
	created := 0
	for _, id := range missing {
		ok, err := s.backfillUser(ctx, id)
		if err != nil {
			log.Printf("[Backfill] User %d failed: %v", id, err)
			errs = append(errs, fmt.Errorf("user %d: %w", id, err))
			continue
		}
		if ok {
			created++
		}
	}

	log.Printf("[Backfill] Created %d of %d missing users", created, len(missing))
	return created, errors.Join(errs...)
}

func (s *ReferralService) backfillUser(ctx context.Context, userID uint) (bool, error) {
	wallet, err := s.chain.GetUserAddress(ctx, userID)
	if err != nil {
		return false, upstreamError("get user address", err)
	}

	record, err := s.chain.GetUserInfo(ctx, wallet)
	if err != nil {
		return false, upstreamError("get user info", err)
	}

	user := newUserFromRecord(record)
	created, err := s.repo.CreateUserIfAbsent(ctx, user)
	if err != nil {
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	if !created {
		return false, nil
	}

	log.Printf("[Backfill] Inserted missing user %d", user.UserID)
	if err := s.linkToReferrer(ctx, user); err != nil {
		return true, err
	}
	return true, nil
}

// ReconcileTeams recomputes total_team, total_partners and active_team for every user
// from the stored parent pointers and overwrites the stored counters.
func (s *ReferralService) ReconcileTeams(ctx context.Context) error {
	nodes, err := s.repo.ListTreeNodes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load referral tree: %w", err)
	}

	counters := ComputeTeamCounters(nodes)
	if err := s.repo.SetTeamCounters(ctx, counters); err != nil {
		return fmt.Errorf("failed to store team counters: %w", err)
	}

	log.Printf("[Reconcile] Updated team counters for %d users", len(counters))
	return nil
}

// ComputeTeamCounters derives team, partner and active-team sizes for every node.
// Descendants are collected with an explicit stack so deep trees do not grow the call stack.
func ComputeTeamCounters(nodes []repository.TreeNode) map[uint]repository.TeamCounters {
	children := make(map[uint][]uint, len(nodes))
	active := make(map[uint]bool, len(nodes))
	for _, n := range nodes {
		active[n.UserID] = n.IsActive
		if n.ReferredBy != nil {
			children[*n.ReferredBy] = append(children[*n.ReferredBy], n.UserID)
		}
	}

	counters := make(map[uint]repository.TeamCounters, len(nodes))
	for _, n := range nodes {
		direct := children[n.UserID]

		visited := map[uint]bool{n.UserID: true}
		stack := append([]uint(nil), direct...)
		var team, activeTeam int64
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[id] {
				continue
			}
			visited[id] = true
			team++
			if active[id] {
				activeTeam++
			}
			stack = append(stack, children[id]...)
		}

		counters[n.UserID] = repository.TeamCounters{
			TotalTeam:     team,
			TotalPartners: int64(len(direct)),
			ActiveTeam:    activeTeam,
		}
	}
	return counters
}

// newUserFromRecord builds a local user from its on-chain registration record
func newUserFromRecord(record *blockchain.UserRecord) *models.User {
	user := &models.User{
		UserID:            record.UserID,
		WalletAddress:     record.WalletAddress,
		FullName:          record.FullName,
		ReferrerAddress:   record.ReferrerAddress,
		Role:              models.RoleUser,
		CurrentActiveSlot: 0,
	}
	if record.ReferrerID != 0 && record.ReferrerID != record.UserID {
		referrer := record.ReferrerID
		user.ReferredBy = &referrer
	}
	return user
}
