package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

const (
	subsonicAPIVersion = "1.16.1"
	defaultClientName  = "agin"

	// Subsonic error codes
	codeWrongCredentials = 40
	codeNotFound         = 70
)

// SubsonicOptions configures a [SubsonicService].
type SubsonicOptions struct {
	BaseURL           string
	Username          string
	Password          string
	Client            string
	MaxBitRate        int
	Format            string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *log.Logger

	// Salt generates the per-request auth salt; defaults to a random id.
	Salt func() string
}

// SubsonicService is a REST client for a Subsonic-compatible server.
type SubsonicService struct {
	baseURL    string
	username   string
	password   string
	client     string
	maxBitRate int
	format     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	salt       func() string
}

// NewSubsonicService creates a new client from opts.
func NewSubsonicService(opts SubsonicOptions) *SubsonicService {
	if opts.Client == "" {
		opts.Client = defaultClientName
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Salt == nil {
		opts.Salt = func() string { return strings.ReplaceAll(shared.GenerateID(), "-", "")[:12] }
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &SubsonicService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		username:   opts.Username,
		password:   opts.Password,
		client:     opts.Client,
		maxBitRate: opts.MaxBitRate,
		format:     opts.Format,
		httpClient: opts.HTTPClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     opts.Logger,
		salt:       opts.Salt,
	}
}

// NewSubsonicServiceFromConfig wires a client from the application config.
func NewSubsonicServiceFromConfig(cfg *shared.Config, logger *log.Logger) *SubsonicService {
	return NewSubsonicService(SubsonicOptions{
		BaseURL:           cfg.Server.URL,
		Username:          cfg.Server.Username,
		Password:          cfg.Server.Password,
		Client:            cfg.Server.Client,
		MaxBitRate:        cfg.Streaming.MaxBitRate,
		Format:            cfg.Streaming.Format,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
		Logger:            logger,
	})
}

// authParams returns the common query parameters with a fresh salted token.
func (s *SubsonicService) authParams() url.Values {
	salt := s.salt()
	sum := md5.Sum([]byte(s.password + salt))

	v := url.Values{}
	v.Set("u", s.username)
	v.Set("t", hex.EncodeToString(sum[:]))
	v.Set("s", salt)
	v.Set("v", subsonicAPIVersion)
	v.Set("c", s.client)
	return v
}

func (s *SubsonicService) endpoint(method string, params url.Values) string {
	q := s.authParams()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	return fmt.Sprintf("%s/rest/%s?%s", s.baseURL, method, q.Encode())
}

// subsonicError is the error element of a failed response.
type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope wraps every JSON response under "subsonic-response".
type envelope struct {
	Response struct {
		Status   string           `json:"status"`
		Version  string           `json:"version"`
		Error    *subsonicError   `json:"error,omitempty"`
		Song     *models.Child    `json:"song,omitempty"`
		Playlist *models.Playlist `json:"playlist,omitempty"`
		Album    *models.Album    `json:"album,omitempty"`
	} `json:"subsonic-response"`
}

func (s *SubsonicService) doRequest(ctx context.Context, method string, params url.Values, notFound error) (*envelope, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(method, params), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s status %d", shared.ErrServerResponse, method, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if env.Response.Status != "ok" {
		e := env.Response.Error
		if e == nil {
			return nil, fmt.Errorf("%w: %s status %q", shared.ErrServerResponse, method, env.Response.Status)
		}
		s.logger.Debug("subsonic error", "method", method, "code", e.Code, "message", e.Message)
		switch {
		case e.Code == codeNotFound && notFound != nil:
			return nil, fmt.Errorf("%w: %s", notFound, e.Message)
		case e.Code == codeWrongCredentials:
			return nil, fmt.Errorf("%w: %s", shared.ErrAuthFailed, e.Message)
		default:
			return nil, fmt.Errorf("%w: %s (code %d)", shared.ErrServerResponse, e.Message, e.Code)
		}
	}
	return &env, nil
}

// Ping checks connectivity and credentials.
func (s *SubsonicService) Ping(ctx context.Context) error {
	_, err := s.doRequest(ctx, "ping", nil, nil)
	return err
}

// FetchChild calls getSong. The server has no cache to bypass, so forceRefresh is ignored.
func (s *SubsonicService) FetchChild(ctx context.Context, id string, _ bool) (*models.Child, error) {
	env, err := s.doRequest(ctx, "getSong", url.Values{"id": {id}}, shared.ErrTrackNotFound)
	if err != nil {
		return nil, err
	}
	if env.Response.Song == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return env.Response.Song, nil
}

// GetPlaylist calls getPlaylist.
func (s *SubsonicService) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	env, err := s.doRequest(ctx, "getPlaylist", url.Values{"id": {id}}, shared.ErrPlaylistNotFound)
	if err != nil {
		return nil, err
	}
	if env.Response.Playlist == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return env.Response.Playlist, nil
}

// GetAlbum calls getAlbum.
func (s *SubsonicService) GetAlbum(ctx context.Context, id string) (*models.Album, error) {
	env, err := s.doRequest(ctx, "getAlbum", url.Values{"id": {id}}, shared.ErrAlbumNotFound)
	if err != nil {
		return nil, err
	}
	if env.Response.Album == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	}
	return env.Response.Album, nil
}

func (s *SubsonicService) Star(ctx context.Context, id string, kind StarKind) error {
	_, err := s.doRequest(ctx, "star", url.Values{kind.param(): {id}}, shared.ErrTrackNotFound)
	return err
}

func (s *SubsonicService) Unstar(ctx context.Context, id string, kind StarKind) error {
	_, err := s.doRequest(ctx, "unstar", url.Values{kind.param(): {id}}, shared.ErrTrackNotFound)
	return err
}

// Scrobble submits a now-playing notification (submission=false).
func (s *SubsonicService) Scrobble(ctx context.Context, id string) error {
	params := url.Values{"id": {id}, "submission": {"false"}}
	_, err := s.doRequest(ctx, "scrobble", params, shared.ErrTrackNotFound)
	return err
}

// StreamURL returns the playback URL for id with the configured transcoding settings.
func (s *SubsonicService) StreamURL(id string) string {
	params := url.Values{"id": {id}}
	if s.maxBitRate > 0 {
		params.Set("maxBitRate", strconv.Itoa(s.maxBitRate))
	}
	if s.format != "" {
		params.Set("format", s.format)
	}
	return s.endpoint("stream", params)
}

// DownloadURL returns the untranscoded stream URL for id.
func (s *SubsonicService) DownloadURL(id string) string {
	return s.endpoint("stream", url.Values{"id": {id}})
}

// CoverURL returns the cover art URL for coverArt; size 0 requests the original.
func (s *SubsonicService) CoverURL(coverArt string, size int) string {
	params := url.Values{"id": {coverArt}}
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}
	return s.endpoint("getCoverArt", params)
}
