package teams

import (
	"errors"
	"fmt"
	"squadforge-backend/internal/models"
	"squadforge-backend/internal/notifications"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get raw connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.Team{},
		&models.TeamMember{},
		&models.TeamInvite{},
		&models.Notification{},
	)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// recordingNotifier captures gateway deliveries so tests can assert on them.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

func (r *recordingNotifier) Notify(n notifications.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fakeMilestones struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeMilestones) CheckRosterMilestones(team *models.Team) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingNotifier, *fakeMilestones) {
	t.Helper()
	db := testDB(t)
	notifier := &recordingNotifier{}
	milestones := &fakeMilestones{}
	return NewService(db, nil, notifier, milestones), db, notifier, milestones
}

func createUser(t *testing.T, db *gorm.DB, tag string) *models.User {
	t.Helper()
	user := &models.User{
		GamerTag: tag,
		Email:    tag + "@example.com",
		Password: "secret-password",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", tag, err)
	}
	return user
}

func createGame(t *testing.T, db *gorm.DB, name string) *models.Game {
	t.Helper()
	game := &models.Game{Name: name, Slug: name}
	if err := db.Create(game).Error; err != nil {
		t.Fatalf("failed to create game %s: %v", name, err)
	}
	return game
}

func createTeam(t *testing.T, svc *Service, captain *models.User, gameID uint, maxMembers int) *models.Team {
	t.Helper()
	team, err := svc.CreateTeam(CreateTeamInput{
		Name:       fmt.Sprintf("%s's team", captain.GamerTag),
		GameID:     gameID,
		MaxMembers: maxMembers,
	}, captain)
	if err != nil {
		t.Fatalf("failed to create team: %v", err)
	}
	return team
}

func TestCreateTeamCreatesCaptainMembership(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")

	team := createTeam(t, svc, captain, game.ID, 5)

	if team.CaptainID != captain.ID {
		t.Errorf("captain_id = %q, want %q", team.CaptainID, captain.ID)
	}
	member, err := models.GetMembership(db, team.ID, captain.ID)
	if err != nil {
		t.Fatalf("captain membership missing: %v", err)
	}
	if member.Role != models.RoleCaptain {
		t.Errorf("role = %q, want captain", member.Role)
	}
	if member.Status != models.MemberStatusActive {
		t.Errorf("status = %q, want active", member.Status)
	}
	if member.ApprovedAt == nil {
		t.Error("captain membership has no approved_at")
	}
}

func TestCreateTeamGameConflict(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	createTeam(t, svc, captain, game.ID, 5)

	_, err := svc.CreateTeam(CreateTeamInput{Name: "Second", GameID: game.ID}, captain)
	if !errors.Is(err, ErrGameConflict) {
		t.Fatalf("err = %v, want ErrGameConflict", err)
	}
}

func TestApplyCreatesPendingApplication(t *testing.T) {
	svc, db, notifier, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	member, err := svc.Apply(team.ID, applicant)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if member.Status != models.MemberStatusPending {
		t.Errorf("status = %q, want pending", member.Status)
	}
	if member.Role != models.RoleMember {
		t.Errorf("role = %q, want member", member.Role)
	}
	// Capacity must not be consumed by a pending application
	count, err := team.ActiveMemberCount(db)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("active count = %d, want 1", count)
	}
	// The captain hears about it
	if notifier.count() != 1 {
		t.Errorf("notifications sent = %d, want 1", notifier.count())
	}
}

func TestApplyNotRecruiting(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	if err := db.Model(team).Update("is_recruiting", false).Error; err != nil {
		t.Fatal(err)
	}

	_, err := svc.Apply(team.ID, applicant)
	if !errors.Is(err, ErrNotRecruiting) {
		t.Fatalf("err = %v, want ErrNotRecruiting", err)
	}
}

func TestApplyTeamFull(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	second := createUser(t, db, "tenz")
	third := createUser(t, db, "aceu")
	team := createTeam(t, svc, captain, game.ID, 2)

	app, err := svc.Apply(team.ID, second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(app.ID, captain); err != nil {
		t.Fatal(err)
	}

	_, err = svc.Apply(team.ID, third)
	if !errors.Is(err, ErrTeamFull) {
		t.Fatalf("err = %v, want ErrTeamFull", err)
	}
}

func TestApplyDuplicate(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	if _, err := svc.Apply(team.ID, applicant); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Apply(team.ID, applicant)
	if !errors.Is(err, ErrDuplicateApplication) {
		t.Fatalf("err = %v, want ErrDuplicateApplication", err)
	}
}

func TestApplyGameConflict(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captainA := createUser(t, db, "shroud")
	captainB := createUser(t, db, "tenz")
	createTeam(t, svc, captainA, game.ID, 5)
	teamB := createTeam(t, svc, captainB, game.ID, 5)

	// captainA already plays this game on their own team
	_, err := svc.Apply(teamB.ID, captainA)
	if !errors.Is(err, ErrGameConflict) {
		t.Fatalf("err = %v, want ErrGameConflict", err)
	}
}

func TestApproveActivatesMembership(t *testing.T) {
	svc, db, _, milestones := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, applicant)
	if err != nil {
		t.Fatal(err)
	}
	member, err := svc.Approve(app.ID, captain)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if member.Status != models.MemberStatusActive {
		t.Errorf("status = %q, want active", member.Status)
	}
	if member.ApprovedAt == nil {
		t.Error("approved_at not set")
	}
	if milestones.calls != 1 {
		t.Errorf("milestone checks = %d, want 1", milestones.calls)
	}
}

func TestApproveRequiresPrivilegedActor(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	outsider := createUser(t, db, "aceu")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, applicant)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(app.ID, outsider); !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
	// The application itself cannot self-approve either
	if _, err := svc.Approve(app.ID, applicant); !errors.Is(err, ErrPermission) {
		t.Fatalf("self-approve err = %v, want ErrPermission", err)
	}
}

func TestApproveNonPending(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, applicant)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(app.ID, captain); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(app.ID, captain); !errors.Is(err, ErrValidation) {
		t.Fatalf("double approve err = %v, want ErrValidation", err)
	}
}

func TestDeclineApplication(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	applicant := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, applicant)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Decline(app.ID, captain); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}

	member, err := models.GetMembership(db, team.ID, applicant.ID)
	if err != nil {
		t.Fatal(err)
	}
	if member.Status != models.MemberStatusRemoved {
		t.Errorf("status = %q, want removed", member.Status)
	}
	if member.LeftAt == nil {
		t.Error("left_at not set")
	}
}

func TestInviteAndAccept(t *testing.T) {
	svc, db, _, milestones := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	invite, err := svc.Invite(team.ID, captain, invitee.ID, "join us")
	if err != nil {
		t.Fatalf("Invite failed: %v", err)
	}
	if invite.Status != models.InviteStatusPending {
		t.Errorf("invite status = %q, want pending", invite.Status)
	}
	wantExpiry := time.Now().Add(inviteTTL)
	if invite.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || invite.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expires_at = %v, want around %v", invite.ExpiresAt, wantExpiry)
	}

	member, err := svc.AcceptInvite(invite.ID, invitee)
	if err != nil {
		t.Fatalf("AcceptInvite failed: %v", err)
	}
	if member.Status != models.MemberStatusActive {
		t.Errorf("member status = %q, want active", member.Status)
	}
	var stored models.TeamInvite
	if err := db.First(&stored, invite.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InviteStatusAccepted {
		t.Errorf("invite status = %q, want accepted", stored.Status)
	}
	if stored.RespondedAt == nil {
		t.Error("responded_at not set")
	}
	if milestones.calls != 1 {
		t.Errorf("milestone checks = %d, want 1", milestones.calls)
	}
}

func TestInviteRequiresPrivilegedInviter(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	outsider := createUser(t, db, "aceu")
	team := createTeam(t, svc, captain, game.ID, 5)

	if _, err := svc.Invite(team.ID, outsider, invitee.ID, ""); !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
}

func TestInviteDuplicatePending(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	if _, err := svc.Invite(team.ID, captain, invitee.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Invite(team.ID, captain, invitee.ID, ""); !errors.Is(err, ErrDuplicatePendingInvite) {
		t.Fatalf("err = %v, want ErrDuplicatePendingInvite", err)
	}
}

func TestInviteActiveMember(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	team := createTeam(t, svc, captain, game.ID, 5)

	if _, err := svc.Invite(team.ID, captain, captain.ID, ""); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}
}

func TestAcceptInviteWrongUser(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	other := createUser(t, db, "aceu")
	team := createTeam(t, svc, captain, game.ID, 5)

	invite, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AcceptInvite(invite.ID, other); !errors.Is(err, ErrPermission) {
		t.Fatalf("err = %v, want ErrPermission", err)
	}
}

func TestAcceptExpiredInvite(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	invite, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(invite).Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := svc.AcceptInvite(invite.ID, invitee); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAcceptInviteReactivatesOldRow(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	member := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, member)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Approve(app.ID, captain); err != nil {
		t.Fatal(err)
	}
	if err := svc.Leave(team.ID, member); err != nil {
		t.Fatal(err)
	}

	invite, err := svc.Invite(team.ID, captain, member.ID, "come back")
	if err != nil {
		t.Fatal(err)
	}
	rejoined, err := svc.AcceptInvite(invite.ID, member)
	if err != nil {
		t.Fatalf("AcceptInvite failed: %v", err)
	}
	if rejoined.ID != app.ID {
		t.Errorf("rejoined row id = %d, want reuse of %d", rejoined.ID, app.ID)
	}
	if rejoined.Status != models.MemberStatusActive {
		t.Errorf("status = %q, want active", rejoined.Status)
	}
	if rejoined.LeftAt != nil {
		t.Error("left_at should be cleared on rejoin")
	}

	var rows int64
	if err := db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", team.ID, member.ID).
		Count(&rows).Error; err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("membership rows = %d, want 1", rows)
	}
}

func TestDeclineInvite(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	invite, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeclineInvite(invite.ID, invitee); err != nil {
		t.Fatalf("DeclineInvite failed: %v", err)
	}

	var stored models.TeamInvite
	if err := db.First(&stored, invite.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InviteStatusDeclined {
		t.Errorf("status = %q, want declined", stored.Status)
	}
	// No membership row was created
	if _, err := models.GetMembership(db, team.ID, invitee.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("membership err = %v, want record not found", err)
	}
}

func TestDeclineInviteTwiceAcrossReinvite(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	first, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeclineInvite(first.ID, invitee); err != nil {
		t.Fatalf("first decline failed: %v", err)
	}

	// Re-inviting is allowed; the pending row sits next to the declined one
	second, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatalf("re-invite failed: %v", err)
	}

	// A second declined row for the pair would collide with the
	// (team, user, status) index; the service reports a stable error kind
	// instead of surfacing the raw constraint violation.
	err = svc.DeclineInvite(second.ID, invitee)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("second decline err = %v, want ErrValidation", err)
	}

	var stored models.TeamInvite
	if err := db.First(&stored, second.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InviteStatusPending {
		t.Errorf("second invite status = %q, want pending after rollback", stored.Status)
	}
}

func TestExpireInvitesSweepPrunesSupersededExpired(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	invitee := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	first, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(first).Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ExpireInvitesSweep(time.Now()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}

	// Re-invite the same pair, let it go overdue too. The second sweep must
	// not collide with the existing expired row.
	second, err := svc.Invite(team.ID, captain, invitee.ID, "")
	if err != nil {
		t.Fatalf("re-invite failed: %v", err)
	}
	if err := db.Model(second).Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatal(err)
	}

	expired, err := svc.ExpireInvitesSweep(time.Now())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	// The superseded expired row is gone; only the newer one remains
	var rows int64
	err = db.Unscoped().Model(&models.TeamInvite{}).
		Where("team_id = ? AND invited_user_id = ?", team.ID, invitee.ID).
		Count(&rows).Error
	if err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("invite rows for pair = %d, want 1", rows)
	}

	var stored models.TeamInvite
	if err := db.First(&stored, second.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InviteStatusExpired {
		t.Errorf("status = %q, want expired", stored.Status)
	}
}

func TestActiveInvitesHideOverdue(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	first := createUser(t, db, "tenz")
	second := createUser(t, db, "aceu")
	team := createTeam(t, svc, captain, game.ID, 5)

	overdue, err := svc.Invite(team.ID, captain, first.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(overdue).Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatal(err)
	}
	fresh, err := svc.Invite(team.ID, captain, second.ID, "")
	if err != nil {
		t.Fatal(err)
	}

	// The overdue invite is invisible even before the sweep flips it
	invites, err := models.ActiveInvitesForTeam(db, team.ID, time.Now())
	if err != nil {
		t.Fatalf("ActiveInvitesForTeam failed: %v", err)
	}
	if len(invites) != 1 {
		t.Fatalf("active invites = %d, want 1", len(invites))
	}
	if invites[0].ID != fresh.ID {
		t.Errorf("active invite id = %d, want %d", invites[0].ID, fresh.ID)
	}
}

func TestExpireInvitesSweepIsIdempotent(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	first := createUser(t, db, "tenz")
	second := createUser(t, db, "aceu")
	team := createTeam(t, svc, captain, game.ID, 5)

	overdue, err := svc.Invite(team.ID, captain, first.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(overdue).Update("expires_at", time.Now().Add(-time.Hour)).Error; err != nil {
		t.Fatal(err)
	}
	fresh, err := svc.Invite(team.ID, captain, second.ID, "")
	if err != nil {
		t.Fatal(err)
	}

	expired, err := svc.ExpireInvitesSweep(time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}

	var stored models.TeamInvite
	if err := db.First(&stored, overdue.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InviteStatusExpired {
		t.Errorf("overdue invite status = %q, want expired", stored.Status)
	}
	if err := db.First(&stored, fresh.ID).Error; err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.InviteStatusPending {
		t.Errorf("fresh invite status = %q, want pending", stored.Status)
	}

	// Second pass finds nothing new
	expired, err = svc.ExpireInvitesSweep(time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if expired != 0 {
		t.Errorf("second sweep expired = %d, want 0", expired)
	}
}

func TestChangeRole(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	member := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, member)
	if err != nil {
		t.Fatal(err)
	}
	active, err := svc.Approve(app.ID, captain)
	if err != nil {
		t.Fatal(err)
	}

	promoted, err := svc.ChangeRole(active.ID, models.RoleCoCaptain, captain)
	if err != nil {
		t.Fatalf("ChangeRole failed: %v", err)
	}
	if promoted.Role != models.RoleCoCaptain {
		t.Errorf("role = %q, want co_captain", promoted.Role)
	}

	// Only the captain may change roles, even a co-captain may not
	if _, err := svc.ChangeRole(active.ID, models.RoleMember, member); !errors.Is(err, ErrPermission) {
		t.Fatalf("co-captain actor err = %v, want ErrPermission", err)
	}

	// Promotion to captain must go through the transfer path
	if _, err := svc.ChangeRole(active.ID, models.RoleCaptain, captain); !errors.Is(err, ErrValidation) {
		t.Fatalf("promote-to-captain err = %v, want ErrValidation", err)
	}

	// The captain's own role cannot be demoted here
	captainRow, err := models.GetMembership(db, team.ID, captain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ChangeRole(captainRow.ID, models.RoleMember, captain); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("demote captain err = %v, want ErrInvalidTarget", err)
	}
}

func TestRemoveMember(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	game := createGame(t, db, "valorant")
	captain := createUser(t, db, "shroud")
	member := createUser(t, db, "tenz")
	team := createTeam(t, svc, captain, game.ID, 5)

	app, err := svc.Apply(team.ID, member)
	if err != nil {
		t.Fatal(err)
	}
	active, err := svc.Approve(app.ID, captain)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveMember(active.ID, captain); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	row, err := models.GetMembership(db, team.ID, member.ID)
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != models.MemberStatusRemoved {
		t.Errorf("status = %q, want removed", row.Status)
	}
	if row.LeftAt == nil {
		t.Error("left_at not set")
	}

	// The captain cannot be removed, only leave or transfer
	captainRow, err := models.GetMembership(db, team.ID, captain.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.RemoveMember(captainRow.ID, captain); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("remove captain err = %v, want ErrInvalidTarget", err)
	}
}
