package tournaments

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"squadforge-backend/internal/models"
	"strings"
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
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.Team{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Match{},
	)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func createGame(t *testing.T, db *gorm.DB, slug string) *models.Game {
	t.Helper()
	game := &models.Game{Name: slug, Slug: slug}
	if err := db.Create(game).Error; err != nil {
		t.Fatal(err)
	}
	return game
}

func createTeam(t *testing.T, db *gorm.DB, gameID uint, name string) *models.Team {
	t.Helper()
	captain := &models.User{GamerTag: name + "-captain", Email: name + "@example.com"}
	if err := db.Create(captain).Error; err != nil {
		t.Fatal(err)
	}
	team := &models.Team{
		Name:       name,
		GameID:     gameID,
		CaptainID:  captain.ID,
		Status:     models.TeamStatusActive,
		MaxMembers: 5,
	}
	if err := db.Create(team).Error; err != nil {
		t.Fatal(err)
	}
	return team
}

func createTournament(t *testing.T, db *gorm.DB, gameID uint, externalID string, endedAt time.Time) *models.Tournament {
	t.Helper()
	tournament := &models.Tournament{
		Name:       "Cup " + externalID,
		GameID:     gameID,
		ExternalID: externalID,
		EndedAt:    &endedAt,
	}
	if err := db.Create(tournament).Error; err != nil {
		t.Fatal(err)
	}
	return tournament
}

func createParticipation(t *testing.T, db *gorm.DB, tournamentID, teamID uint, placement int) {
	t.Helper()
	participant := &models.TournamentParticipant{
		TournamentID: tournamentID,
		TeamID:       teamID,
	}
	if placement != 0 {
		participant.FinalPlacement = &placement
	}
	if err := db.Create(participant).Error; err != nil {
		t.Fatal(err)
	}
}

func createMatch(t *testing.T, db *gorm.DB, tournamentID, homeID, awayID uint, winnerID uint, completedAt time.Time) {
	t.Helper()
	match := &models.Match{
		TournamentID: tournamentID,
		HomeTeamID:   homeID,
		AwayTeamID:   awayID,
		CompletedAt:  &completedAt,
	}
	if winnerID != 0 {
		match.WinnerTeamID = &winnerID
	}
	if err := db.Create(match).Error; err != nil {
		t.Fatal(err)
	}
}

type fakeMilestones struct {
	mu          sync.Mutex
	playedCalls []int
	resultCalls []int
}

func (f *fakeMilestones) CheckTournamentsPlayed(team *models.Team) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playedCalls = append(f.playedCalls, team.TournamentsPlayed)
}

func (f *fakeMilestones) CheckTournamentResult(team *models.Team, finalPlacement, matchesWon, matchesLost int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls = append(f.resultCalls, finalPlacement)
}

func (f *fakeMilestones) playedSeen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.playedCalls...)
}

func TestRecentPlacementsNewestFirst(t *testing.T) {
	db := testDB(t)
	feed := NewFeed(db)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")

	base := time.Now().Add(-72 * time.Hour)
	oldest := createTournament(t, db, game.ID, "t1", base)
	middle := createTournament(t, db, game.ID, "t2", base.Add(24*time.Hour))
	newest := createTournament(t, db, game.ID, "t3", base.Add(48*time.Hour))
	createParticipation(t, db, oldest.ID, team.ID, 3)
	createParticipation(t, db, middle.ID, team.ID, 1)
	// Unplaced participation reports as 0
	createParticipation(t, db, newest.ID, team.ID, 0)

	placements, err := feed.RecentPlacements(team.ID, 3)
	if err != nil {
		t.Fatalf("RecentPlacements failed: %v", err)
	}
	want := []int{0, 1, 3}
	if len(placements) != len(want) {
		t.Fatalf("placements = %v, want %v", placements, want)
	}
	for i := range want {
		if placements[i] != want[i] {
			t.Errorf("placements[%d] = %d, want %d", i, placements[i], want[i])
		}
	}
}

func TestRecentPlacementsHonorsLimit(t *testing.T) {
	db := testDB(t)
	feed := NewFeed(db)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")

	base := time.Now().Add(-96 * time.Hour)
	for i := 0; i < 4; i++ {
		tournament := createTournament(t, db, game.ID, "t"+string(rune('1'+i)), base.Add(time.Duration(i)*24*time.Hour))
		createParticipation(t, db, tournament.ID, team.ID, i+1)
	}

	placements, err := feed.RecentPlacements(team.ID, 2)
	if err != nil {
		t.Fatalf("RecentPlacements failed: %v", err)
	}
	if len(placements) != 2 {
		t.Fatalf("len(placements) = %d, want 2", len(placements))
	}
	if placements[0] != 4 || placements[1] != 3 {
		t.Errorf("placements = %v, want [4 3]", placements)
	}
}

func TestWinStreakStopsAtFirstNonWin(t *testing.T) {
	db := testDB(t)
	feed := NewFeed(db)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")
	rival := createTeam(t, db, game.ID, "bravo")
	tournament := createTournament(t, db, game.ID, "t1", time.Now())

	base := time.Now().Add(-5 * time.Hour)
	// Oldest to newest: win, loss, win, win
	createMatch(t, db, tournament.ID, team.ID, rival.ID, team.ID, base)
	createMatch(t, db, tournament.ID, rival.ID, team.ID, rival.ID, base.Add(time.Hour))
	createMatch(t, db, tournament.ID, team.ID, rival.ID, team.ID, base.Add(2*time.Hour))
	createMatch(t, db, tournament.ID, rival.ID, team.ID, team.ID, base.Add(3*time.Hour))

	streak, err := feed.WinStreakLength(team.ID)
	if err != nil {
		t.Fatalf("WinStreakLength failed: %v", err)
	}
	if streak != 2 {
		t.Errorf("streak = %d, want 2", streak)
	}
}

func TestWinStreakDrawBreaksRun(t *testing.T) {
	db := testDB(t)
	feed := NewFeed(db)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")
	rival := createTeam(t, db, game.ID, "bravo")
	tournament := createTournament(t, db, game.ID, "t1", time.Now())

	base := time.Now().Add(-3 * time.Hour)
	createMatch(t, db, tournament.ID, team.ID, rival.ID, team.ID, base)
	// A completed match with no winner stops the count
	createMatch(t, db, tournament.ID, team.ID, rival.ID, 0, base.Add(time.Hour))
	createMatch(t, db, tournament.ID, team.ID, rival.ID, team.ID, base.Add(2*time.Hour))

	streak, err := feed.WinStreakLength(team.ID)
	if err != nil {
		t.Fatalf("WinStreakLength failed: %v", err)
	}
	if streak != 1 {
		t.Errorf("streak = %d, want 1", streak)
	}
}

func TestWinStreakNoMatches(t *testing.T) {
	db := testDB(t)
	feed := NewFeed(db)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")

	streak, err := feed.WinStreakLength(team.ID)
	if err != nil {
		t.Fatalf("WinStreakLength failed: %v", err)
	}
	if streak != 0 {
		t.Errorf("streak = %d, want 0", streak)
	}
}

func TestIngestStoresResultAndBumpsAggregates(t *testing.T) {
	db := testDB(t)
	game := createGame(t, db, "valorant")
	winner := createTeam(t, db, game.ID, "alpha")
	loser := createTeam(t, db, game.ID, "bravo")
	milestones := &fakeMilestones{}
	ingestor := NewIngestor(db, milestones, nil)

	result := TournamentResult{
		ExternalID: "ext-100",
		Name:       "Summer Cup",
		GameSlug:   "valorant",
		EndedAt:    time.Now(),
		Participants: []ParticipantResult{
			{TeamID: winner.ID, FinalPlacement: 1, MatchesWon: 3, MatchesLost: 0},
			{TeamID: loser.ID, FinalPlacement: 2, MatchesWon: 2, MatchesLost: 1},
		},
		Matches: []MatchResult{
			{HomeTeamID: winner.ID, AwayTeamID: loser.ID, WinnerTeamID: winner.ID, CompletedAt: time.Now()},
		},
	}
	if err := ingestor.Ingest(result); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	var tournament models.Tournament
	if err := db.Where("external_id = ?", "ext-100").First(&tournament).Error; err != nil {
		t.Fatalf("tournament not stored: %v", err)
	}

	var reloaded models.Team
	if err := db.First(&reloaded, winner.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.TournamentsPlayed != 1 || reloaded.TournamentsWon != 1 {
		t.Errorf("winner stats = played %d won %d, want 1/1", reloaded.TournamentsPlayed, reloaded.TournamentsWon)
	}
	if reloaded.TotalWins != 3 || reloaded.TotalLosses != 0 {
		t.Errorf("winner record = %d-%d, want 3-0", reloaded.TotalWins, reloaded.TotalLosses)
	}

	if err := db.First(&reloaded, loser.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.TournamentsPlayed != 1 || reloaded.TournamentsWon != 0 {
		t.Errorf("loser stats = played %d won %d, want 1/0", reloaded.TournamentsPlayed, reloaded.TournamentsWon)
	}

	if len(milestones.playedCalls) != 2 {
		t.Errorf("CheckTournamentsPlayed calls = %d, want 2", len(milestones.playedCalls))
	}
	if len(milestones.resultCalls) != 2 {
		t.Errorf("CheckTournamentResult calls = %d, want 2", len(milestones.resultCalls))
	}
}

func TestIngestSameExternalIDTwice(t *testing.T) {
	db := testDB(t)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")
	milestones := &fakeMilestones{}
	ingestor := NewIngestor(db, milestones, nil)

	result := TournamentResult{
		ExternalID: "ext-200",
		Name:       "Autumn Cup",
		GameSlug:   "valorant",
		EndedAt:    time.Now(),
		Participants: []ParticipantResult{
			{TeamID: team.ID, FinalPlacement: 1, MatchesWon: 2, MatchesLost: 0},
		},
	}
	if err := ingestor.Ingest(result); err != nil {
		t.Fatalf("first Ingest failed: %v", err)
	}
	if err := ingestor.Ingest(result); err != nil {
		t.Fatalf("second Ingest failed: %v", err)
	}

	var count int64
	if err := db.Model(&models.Tournament{}).Where("external_id = ?", "ext-200").Count(&count).Error; err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("tournament rows = %d, want 1", count)
	}

	var reloaded models.Team
	if err := db.First(&reloaded, team.ID).Error; err != nil {
		t.Fatal(err)
	}
	// Aggregates bumped by the first ingest only
	if reloaded.TournamentsPlayed != 1 {
		t.Errorf("tournaments_played = %d, want 1", reloaded.TournamentsPlayed)
	}
	if len(milestones.playedCalls) != 1 {
		t.Errorf("milestone checks = %d, want 1", len(milestones.playedCalls))
	}
}

func TestIngestConcurrentTournamentsSharedTeam(t *testing.T) {
	db := testDB(t)
	game := createGame(t, db, "valorant")
	team := createTeam(t, db, game.ID, "alpha")
	milestones := &fakeMilestones{}
	ingestor := NewIngestor(db, milestones, nil)

	// Two tournaments sharing the team land at once; the in-place counter
	// increments must not lose an update and each ingest must see its own
	// exact post-increment count.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ingestor.Ingest(TournamentResult{
				ExternalID: fmt.Sprintf("ext-4%d", i),
				Name:       fmt.Sprintf("Cup %d", i),
				GameSlug:   "valorant",
				EndedAt:    time.Now(),
				Participants: []ParticipantResult{
					{TeamID: team.ID, FinalPlacement: 1, MatchesWon: 2, MatchesLost: 0},
				},
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("ingest %d failed: %v", i, err)
		}
	}

	var reloaded models.Team
	if err := db.First(&reloaded, team.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.TournamentsPlayed != 2 || reloaded.TournamentsWon != 2 {
		t.Errorf("stats = played %d won %d, want 2/2", reloaded.TournamentsPlayed, reloaded.TournamentsWon)
	}
	if reloaded.TotalWins != 4 {
		t.Errorf("total_wins = %d, want 4", reloaded.TotalWins)
	}

	seen := milestones.playedSeen()
	if len(seen) != 2 {
		t.Fatalf("milestone checks = %d, want 2", len(seen))
	}
	sort.Ints(seen)
	if seen[0] != 1 || seen[1] != 2 {
		t.Errorf("played counts seen = %v, want [1 2]", seen)
	}
}

func TestIngestValidation(t *testing.T) {
	db := testDB(t)
	createGame(t, db, "valorant")
	ingestor := NewIngestor(db, nil, nil)

	if err := ingestor.Ingest(TournamentResult{GameSlug: "valorant"}); err == nil {
		t.Error("expected error for missing external id")
	}
	if err := ingestor.Ingest(TournamentResult{ExternalID: "ext-300", GameSlug: "no-such-game"}); err == nil {
		t.Error("expected error for unknown game")
	}
}

func TestParseResult(t *testing.T) {
	payload := `{
		"tournament": {
			"id": "ext-42",
			"name": "Winter Invitational",
			"game": "valorant",
			"ended_at": 1756500000,
			"participants": [
				{"team_id": 7, "final_placement": 1, "matches_won": 3, "matches_lost": 1},
				{"team_id": 9, "matches_won": 0, "matches_lost": 2}
			],
			"matches": [
				{"home_team_id": 7, "away_team_id": 9, "winner_team_id": 7, "completed_at": 1756490000}
			]
		}
	}`

	result, err := ParseResult(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("ParseResult failed: %v", err)
	}
	if result.ExternalID != "ext-42" || result.Name != "Winter Invitational" || result.GameSlug != "valorant" {
		t.Errorf("header = %+v", result)
	}
	if result.EndedAt != time.Unix(1756500000, 0).UTC() {
		t.Errorf("ended_at = %v", result.EndedAt)
	}
	if len(result.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(result.Participants))
	}
	if result.Participants[0].TeamID != 7 || result.Participants[0].FinalPlacement != 1 {
		t.Errorf("participant[0] = %+v", result.Participants[0])
	}
	// Omitted final_placement decodes as unplaced
	if result.Participants[1].FinalPlacement != 0 {
		t.Errorf("participant[1].FinalPlacement = %d, want 0", result.Participants[1].FinalPlacement)
	}
	if len(result.Matches) != 1 || result.Matches[0].WinnerTeamID != 7 {
		t.Errorf("matches = %+v", result.Matches)
	}
}

func TestParseResultRejectsBadPayloads(t *testing.T) {
	if _, err := ParseResult(strings.NewReader("not json")); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := ParseResult(strings.NewReader(`{"tournament": {"name": "No ID"}}`)); err == nil {
		t.Error("expected error for missing tournament.id")
	}
}

func TestClientFetchTournament(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{
			"tournament": {
				"id": "ext-7",
				"name": "Spring Open",
				"game": "valorant",
				"ended_at": 1756400000,
				"participants": [{"team_id": 3, "final_placement": 1, "matches_won": 2, "matches_lost": 0}]
			}
		}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret-key")
	result, err := client.FetchTournament("ext-7")
	if err != nil {
		t.Fatalf("FetchTournament failed: %v", err)
	}

	if gotPath != "/api/tournaments/ext-7" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if result.ExternalID != "ext-7" || result.Name != "Spring Open" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Participants) != 1 || result.Participants[0].FinalPlacement != 1 {
		t.Errorf("participants = %+v", result.Participants)
	}
}

func TestClientFetchTournamentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	if _, err := client.FetchTournament("gone"); err == nil {
		t.Error("expected error for upstream 404")
	}
}
