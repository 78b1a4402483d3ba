package tenuki

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
)

const (
	defaultBaseURL   = "https://online-go.com"
	defaultSocketURL = "wss://online-go.com/socket.io/?transport=websocket&EIO=3"
)

// UserConfig is the profile/config document fetched after login. UserJWT is
// the token presented in the socket-level authenticate handshake.
type UserConfig struct {
	User             User   `json:"user"`
	UserJWT          string `json:"user_jwt"`
	ChatAuth         string `json:"chat_auth"`
	NotificationAuth string `json:"notification_auth"`
}

// Config fetches the user config document. On a fresh cookie session this
// also primes the CSRF cookie needed by mutating calls.
func (c *Client) Config() (*UserConfig, error) {
	res := UserConfig{}
	if err := c.Get("/api/v1/ui/config/", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AboutMe fetches the logged-in user's profile.
func (c *Client) AboutMe() (*User, error) {
	res := User{}
	if err := c.Get("/api/v1/me", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Overview returns active games.
func (c *Client) Overview() (*Overview, error) {
	res := Overview{}
	if err := c.Get("/api/v1/ui/overview", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Game fetches general game information, mostly static.
func (c *Client) Game(gameID int64) (*Game, error) {
	gameT := struct {
		Game `json:"gamedata"` // Embedded
	}{}
	if err := c.Get(fmt.Sprintf("/api/v1/games/%d", gameID), nil, &gameT); err != nil {
		return nil, err
	}
	res := &gameT.Game
	if res.Height <= 0 || res.Width <= 0 || res.Height != res.Width {
		return nil, fmt.Errorf("invalid Board dimension %d x %d", res.Width, res.Height)
	}
	return res, nil
}

// GameState fetches current game information with a board snapshot.
func (c *Client) GameState(gameID int64) (*GameState, error) {
	res := GameState{}
	if err := c.Get(fmt.Sprintf("/termination-api/game/%d/state", gameID), nil, &res); err != nil {
		return nil, err
	}
	if len(res.Board) == 0 || len(res.Board[0]) == 0 {
		return nil, fmt.Errorf("invalid empty Board")
	}
	if len(res.Board) != len(res.Board[0]) || len(res.Board) > 25 {
		return nil, fmt.Errorf("invalid Board dimension %d x %d", len(res.Board), len(res.Board[0]))
	}
	return &res, nil
}

// ChallengeGame is the game half of a challenge creation request.
type ChallengeGame struct {
	Name                  string      `json:"name"`
	Rules                 string      `json:"rules"`
	Ranked                bool        `json:"ranked"`
	Width                 int         `json:"width"`
	Height                int         `json:"height"`
	Handicap              int         `json:"handicap"`
	Komi                  *float32    `json:"komi"` // nil for automatic
	DisableAnalysis       bool        `json:"disable_analysis"`
	Private               bool        `json:"private"`
	TimeControl           string      `json:"time_control"`
	TimeControlParameters TimeControl `json:"time_control_parameters"`
}

// ChallengeRequest is the body of a challenge creation request.
type ChallengeRequest struct {
	Game            ChallengeGame `json:"game"`
	ChallengerColor string        `json:"challenger_color"`
	MinRanking      float32       `json:"min_ranking"`
	MaxRanking      float32       `json:"max_ranking"`
	Initialized     bool          `json:"initialized"`
	AGARanked       bool          `json:"aga_ranked"`
}

// ChallengeCreated is the server's answer to a challenge creation.
type ChallengeCreated struct {
	ChallengeID int64 `json:"challenge"`
	GameID      int64 `json:"game"`
}

// PostChallenge creates an open challenge. The returned ids are what the
// challenge keep-alive reports while the challenge is outstanding.
func (c *Client) PostChallenge(req *ChallengeRequest) (*ChallengeCreated, error) {
	res := ChallengeCreated{}
	if err := c.postJSON("/api/v1/challenges", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteChallenge withdraws an open challenge by id.
func (c *Client) DeleteChallenge(challengeID int64) error {
	return c.do("DELETE", fmt.Sprintf("/api/v1/challenges/%d", challengeID), nil, nil)
}

// AcceptChallenge accepts somebody else's challenge; the answer names the
// created game.
func (c *Client) AcceptChallenge(challengeID int64) (*ChallengeCreated, error) {
	res := ChallengeCreated{}
	if err := c.postJSON(fmt.Sprintf("/api/v1/challenges/%d/accept", challengeID), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Get sends a GET request and decodes the JSON answer into ptr.
func (c *Client) Get(uri string, params url.Values, ptr any) error {
	if reflect.ValueOf(ptr).Kind() != reflect.Ptr {
		return fmt.Errorf("ptr argument must be a pointer, got %T", ptr)
	}
	req, err := http.NewRequest("GET", c.baseURL+uri, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.URL.RawQuery = params.Encode()

	body, err := c.doRequest(req)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, ptr)
}

// postJSON sends a CSRF-protected POST with a JSON body.
func (c *Client) postJSON(uri string, payload, ptr any) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return err
		}
	}
	return c.do("POST", uri, body, ptr)
}

func (c *Client) do(method, uri string, body []byte, ptr any) error {
	req, err := http.NewRequest(method, c.baseURL+uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", c.baseURL+"/")
	if token := c.csrfToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}

	answer, err := c.doRequest(req)
	if err != nil {
		return err
	}
	if ptr != nil && len(answer) > 0 {
		return json.Unmarshal(answer, ptr)
	}
	return nil
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%s %s -> %s: %w", req.Method, req.URL, resp.Status, ErrNotAuthenticated)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s -> %s", req.Method, req.URL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s -> %w", req.Method, req.URL, err)
	}
	return body, nil
}

// csrfToken reads the CSRF token from the cookie jar. Empty until the first
// successful GET primed the session cookies.
func (c *Client) csrfToken() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.httpc.Jar.Cookies(u) {
		if cookie.Name == "csrftoken" {
			return cookie.Value
		}
	}
	return ""
}
