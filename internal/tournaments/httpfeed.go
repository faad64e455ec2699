package tournaments

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// TournamentResult is one tournament's outcome as reported by the external
// bracket service.
type TournamentResult struct {
	ExternalID   string
	Name         string
	GameSlug     string
	EndedAt      time.Time
	Participants []ParticipantResult
	Matches      []MatchResult
}

// ParticipantResult is one team's outcome in the tournament. A
// FinalPlacement of 1 marks the champion; 0 means unplaced.
type ParticipantResult struct {
	TeamID         uint
	FinalPlacement int
	MatchesWon     int
	MatchesLost    int
}

// MatchResult is one completed match between two teams.
type MatchResult struct {
	HomeTeamID   uint
	AwayTeamID   uint
	WinnerTeamID uint
	CompletedAt  time.Time
}

// Client pulls completed tournament results from the bracket service's
// JSON API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchCompletedSince returns tournaments the bracket service completed
// after the given time.
func (c *Client) FetchCompletedSince(since time.Time) ([]TournamentResult, error) {
	url := fmt.Sprintf("%s/api/tournaments/completed?since=%d", c.baseURL, since.Unix())
	body, err := c.getRawJSON(url)
	if err != nil {
		return nil, err
	}

	var results []TournamentResult
	gjson.GetBytes(body, "tournaments").ForEach(func(_, tournament gjson.Result) bool {
		results = append(results, parseTournament(tournament))
		return true
	})
	return results, nil
}

// FetchTournament returns one tournament's results by its external ID.
func (c *Client) FetchTournament(externalID string) (*TournamentResult, error) {
	body, err := c.getRawJSON(fmt.Sprintf("%s/api/tournaments/%s", c.baseURL, externalID))
	if err != nil {
		return nil, err
	}
	result := parseTournament(gjson.GetBytes(body, "tournament"))
	return &result, nil
}

func (c *Client) getRawJSON(url string) ([]byte, error) {
	// Create the request
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Add("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bracket feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// ParseResult decodes one tournament payload in the bracket service's wire
// format, as pushed to the ingest endpoint.
func ParseResult(r io.Reader) (TournamentResult, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return TournamentResult{}, fmt.Errorf("reading payload: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return TournamentResult{}, errors.New("invalid json payload")
	}
	result := parseTournament(gjson.GetBytes(body, "tournament"))
	if result.ExternalID == "" {
		return TournamentResult{}, errors.New("payload missing tournament.id")
	}
	return result, nil
}

func parseTournament(tournament gjson.Result) TournamentResult {
	result := TournamentResult{
		ExternalID: tournament.Get("id").String(),
		Name:       tournament.Get("name").String(),
		GameSlug:   tournament.Get("game").String(),
	}
	if endedAt := tournament.Get("ended_at"); endedAt.Exists() {
		result.EndedAt = time.Unix(endedAt.Int(), 0).UTC()
	}

	tournament.Get("participants").ForEach(func(_, participant gjson.Result) bool {
		result.Participants = append(result.Participants, ParticipantResult{
			TeamID:         uint(participant.Get("team_id").Uint()),
			FinalPlacement: int(participant.Get("final_placement").Int()),
			MatchesWon:     int(participant.Get("matches_won").Int()),
			MatchesLost:    int(participant.Get("matches_lost").Int()),
		})
		return true
	})

	tournament.Get("matches").ForEach(func(_, match gjson.Result) bool {
		result.Matches = append(result.Matches, MatchResult{
			HomeTeamID:   uint(match.Get("home_team_id").Uint()),
			AwayTeamID:   uint(match.Get("away_team_id").Uint()),
			WinnerTeamID: uint(match.Get("winner_team_id").Uint()),
			CompletedAt:  time.Unix(match.Get("completed_at").Int(), 0).UTC(),
		})
		return true
	})
	return result
}
