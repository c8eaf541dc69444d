package dropbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdk "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/auth"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/sharing"
	"golang.org/x/oauth2"

	"roomstaging/internal/assetstore"
	"roomstaging/internal/infra"
)

// ErrMissingToken indicates that the client was configured without credentials.
var ErrMissingToken = errors.New("dropbox: access token is required")

// Options configures the Dropbox client.
type Options struct {
	AccessToken    string
	APIBaseURL     string
	ContentBaseURL string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client implements assetstore.Provider on the Dropbox v2 SDK.
type Client struct {
	apiBaseURL     string
	contentBaseURL string
	httpClient     *http.Client
	logger         *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.AccessToken)
	if token == "" {
		return nil, ErrMissingToken
	}
	base := opts.HTTPClient
	if base == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}
	baseTransport := base.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   baseTransport,
		},
	}

	apiBaseURL := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = "https://api.dropboxapi.com/2"
	}
	contentBaseURL := strings.TrimRight(opts.ContentBaseURL, "/")
	if contentBaseURL == "" {
		contentBaseURL = "https://content.dropboxapi.com/2"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		apiBaseURL:     apiBaseURL,
		contentBaseURL: contentBaseURL,
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

// config binds ctx to every request the SDK sends for one call.
func (c *Client) config(ctx context.Context) sdk.Config {
	return sdk.Config{
		Client: &http.Client{
			Timeout:   c.httpClient.Timeout,
			Transport: contextTransport{ctx: ctx, base: c.httpClient.Transport},
		},
		URLGenerator: func(hostType, namespace, route string) string {
			base := c.apiBaseURL
			if hostType == "content" {
				base = c.contentBaseURL
			}
			return base + "/" + namespace + "/" + route
		},
	}
}

func (c *Client) files(ctx context.Context) files.Client {
	return files.New(c.config(ctx))
}

func (c *Client) sharing(ctx context.Context) sharing.Client {
	return sharing.New(c.config(ctx))
}

// Upload writes data through the content endpoint. The returned path is the
// one Dropbox reports, which reflects autorename.
func (c *Client) Upload(ctx context.Context, path string, data []byte, opts assetstore.UploadOptions) (string, error) {
	mode := files.WriteModeAdd
	if opts.Mode == assetstore.WriteModeOverwrite {
		mode = files.WriteModeOverwrite
	}
	arg := files.NewUploadArg(path)
	arg.Mode = &files.WriteMode{Tagged: sdk.Tagged{Tag: mode}}
	arg.Autorename = opts.Autorename
	arg.Mute = opts.Mute

	meta, err := c.files(ctx).Upload(arg, bytes.NewReader(data))
	if err != nil {
		return "", c.fail("upload", path, err)
	}
	c.logger.Debug().Str("path", meta.PathDisplay).Int("bytes", len(data)).Msg("dropbox: uploaded file")
	if meta.PathDisplay != "" {
		return meta.PathDisplay, nil
	}
	return path, nil
}

// CreateSharedLink creates a link for path, optionally restricted by settings.
func (c *Client) CreateSharedLink(ctx context.Context, path string, settings *assetstore.LinkSettings) (assetstore.Link, error) {
	arg := sharing.NewCreateSharedLinkWithSettingsArg(path)
	if settings != nil {
		arg.Settings = &sharing.SharedLinkSettings{
			RequestedVisibility: &sharing.RequestedVisibility{Tagged: sdk.Tagged{Tag: string(settings.Visibility)}},
			LinkPassword:        settings.Password,
		}
	}
	meta, err := c.sharing(ctx).CreateSharedLinkWithSettings(arg)
	if err != nil {
		return assetstore.Link{}, c.fail("create_shared_link", path, err)
	}
	return toLink(meta), nil
}

// ListSharedLinks returns existing links for path.
func (c *Client) ListSharedLinks(ctx context.Context, path string, directOnly bool) ([]assetstore.Link, error) {
	arg := sharing.NewListSharedLinksArg()
	arg.Path = path
	arg.DirectOnly = directOnly
	result, err := c.sharing(ctx).ListSharedLinks(arg)
	if err != nil {
		return nil, c.fail("list_shared_links", path, err)
	}
	links := make([]assetstore.Link, 0, len(result.Links))
	for _, meta := range result.Links {
		links = append(links, toLink(meta))
	}
	return links, nil
}

// CreateFolder creates folder without autorename so an existing folder
// surfaces as a conflict.
func (c *Client) CreateFolder(ctx context.Context, folder string) error {
	arg := files.NewCreateFolderArg(folder)
	arg.Autorename = false
	if _, err := c.files(ctx).CreateFolderV2(arg); err != nil {
		return c.fail("create_folder", folder, err)
	}
	return nil
}

// TemporaryLink returns a short-lived direct download link.
func (c *Client) TemporaryLink(ctx context.Context, path string) (string, error) {
	result, err := c.files(ctx).GetTemporaryLink(files.NewGetTemporaryLinkArg(path))
	if err != nil {
		return "", c.fail("temporary_link", path, err)
	}
	return result.Link, nil
}

// AddRecipient shares the file with email as a viewer.
func (c *Client) AddRecipient(ctx context.Context, path, email, message string) error {
	member := &sharing.MemberSelector{Tagged: sdk.Tagged{Tag: sharing.MemberSelectorEmail}, Email: email}
	arg := sharing.NewAddFileMemberArgs(path, []*sharing.MemberSelector{member})
	arg.CustomMessage = message
	arg.AccessLevel = &sharing.AccessLevel{Tagged: sdk.Tagged{Tag: sharing.AccessLevelViewer}}
	if _, err := c.sharing(ctx).AddFileMember(arg); err != nil {
		return c.fail("add_recipient", path, err)
	}
	return nil
}

func (c *Client) fail(op, path string, err error) *assetstore.Error {
	cause, summary := classify(err)
	c.logger.Debug().Str("op", op).Str("path", path).Str("cause", string(cause)).Str("summary", summary).Msg("dropbox: call failed")
	return &assetstore.Error{
		Op:      op,
		Path:    path,
		Cause:   cause,
		Summary: summary,
		Err:     fmt.Errorf("dropbox: %w", err),
	}
}

func toLink(meta sharing.IsSharedLinkMetadata) assetstore.Link {
	var shared *sharing.SharedLinkMetadata
	switch m := meta.(type) {
	case *sharing.FileLinkMetadata:
		shared = &m.SharedLinkMetadata
	case *sharing.FolderLinkMetadata:
		shared = &m.SharedLinkMetadata
	case *sharing.SharedLinkMetadata:
		shared = m
	}
	if shared == nil {
		return assetstore.Link{}
	}
	link := assetstore.Link{URL: shared.Url}
	if shared.LinkPermissions != nil && shared.LinkPermissions.ResolvedVisibility != nil {
		link.Visibility = assetstore.Visibility(shared.LinkPermissions.ResolvedVisibility.Tag)
	}
	return link
}

// contextTransport attaches the caller's context to SDK requests, which the
// SDK does not take per call.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// classify maps an SDK error onto the assetstore cause set using the typed
// endpoint errors. The error summary is kept for logs.
func classify(err error) (assetstore.Cause, string) {
	var (
		uploadErr   files.UploadAPIError
		folderErr   files.CreateFolderV2APIError
		tempErr     files.GetTemporaryLinkAPIError
		createErr   sharing.CreateSharedLinkWithSettingsAPIError
		listErr     sharing.ListSharedLinksAPIError
		memberErr   sharing.AddFileMemberAPIError
		authErr     auth.AuthAPIError
		accessErr   auth.AccessAPIError
		rateErr     auth.RateLimitAPIError
		internalErr sdk.SDKInternalError
		urlErr      *url.Error
	)
	switch {
	case errors.As(err, &uploadErr):
		return uploadCause(uploadErr.EndpointError), uploadErr.ErrorSummary
	case errors.As(err, &folderErr):
		if e := folderErr.EndpointError; e != nil && e.Tag == files.CreateFolderErrorPath {
			return writeCause(e.Path), folderErr.ErrorSummary
		}
		return assetstore.CauseOther, folderErr.ErrorSummary
	case errors.As(err, &tempErr):
		return temporaryLinkCause(tempErr.EndpointError), tempErr.ErrorSummary
	case errors.As(err, &createErr):
		return createLinkCause(createErr.EndpointError), createErr.ErrorSummary
	case errors.As(err, &listErr):
		if e := listErr.EndpointError; e != nil && e.Tag == sharing.ListSharedLinksErrorPath {
			return lookupCause(e.Path), listErr.ErrorSummary
		}
		return assetstore.CauseOther, listErr.ErrorSummary
	case errors.As(err, &memberErr):
		return addMemberCause(memberErr.EndpointError), memberErr.ErrorSummary
	case errors.As(err, &authErr):
		return assetstore.CauseAuth, authErr.ErrorSummary
	case errors.As(err, &accessErr):
		return assetstore.CauseAuth, accessErr.ErrorSummary
	case errors.As(err, &rateErr):
		return assetstore.CauseTransport, rateErr.ErrorSummary
	case errors.As(err, &internalErr):
		return statusCause(internalErr.StatusCode), truncate(internalErr.Content)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &urlErr):
		return assetstore.CauseTransport, ""
	}
	return assetstore.CauseOther, ""
}

func uploadCause(e *files.UploadError) assetstore.Cause {
	if e == nil || e.Tag != files.UploadErrorPath || e.Path == nil {
		return assetstore.CauseOther
	}
	return writeCause(e.Path.Reason)
}

func writeCause(e *files.WriteError) assetstore.Cause {
	if e == nil {
		return assetstore.CauseOther
	}
	switch e.Tag {
	case files.WriteErrorConflict:
		return assetstore.CauseConflict
	case files.WriteErrorNoWritePermission, files.WriteErrorTeamFolder:
		return assetstore.CauseAuth
	case files.WriteErrorTooManyWriteOperations:
		return assetstore.CauseTransport
	}
	return assetstore.CauseOther
}

func lookupCause(e *files.LookupError) assetstore.Cause {
	if e == nil {
		return assetstore.CauseOther
	}
	switch e.Tag {
	case files.LookupErrorNotFound, files.LookupErrorNotFile, files.LookupErrorNotFolder:
		return assetstore.CauseNotFound
	case files.LookupErrorRestrictedContent:
		return assetstore.CauseAuth
	}
	return assetstore.CauseOther
}

func temporaryLinkCause(e *files.GetTemporaryLinkError) assetstore.Cause {
	if e == nil {
		return assetstore.CauseOther
	}
	switch e.Tag {
	case files.GetTemporaryLinkErrorPath:
		return lookupCause(e.Path)
	case files.GetTemporaryLinkErrorEmailNotVerified:
		return assetstore.CauseAuth
	}
	return assetstore.CauseOther
}

// A settings error means the account cannot issue the requested link kind;
// it stays CauseOther so gated links can degrade.
func createLinkCause(e *sharing.CreateSharedLinkWithSettingsError) assetstore.Cause {
	if e == nil {
		return assetstore.CauseOther
	}
	switch e.Tag {
	case sharing.CreateSharedLinkWithSettingsErrorSharedLinkAlreadyExists:
		return assetstore.CauseConflict
	case sharing.CreateSharedLinkWithSettingsErrorPath:
		return lookupCause(e.Path)
	case sharing.CreateSharedLinkWithSettingsErrorAccessDenied, sharing.CreateSharedLinkWithSettingsErrorEmailNotVerified:
		return assetstore.CauseAuth
	}
	return assetstore.CauseOther
}

func addMemberCause(e *sharing.AddFileMemberError) assetstore.Cause {
	if e == nil {
		return assetstore.CauseOther
	}
	switch e.Tag {
	case sharing.AddFileMemberErrorRateLimit:
		return assetstore.CauseTransport
	case sharing.AddFileMemberErrorUserError:
		return assetstore.CauseAuth
	case sharing.AddFileMemberErrorAccessError:
		if e.AccessError == nil {
			return assetstore.CauseOther
		}
		switch e.AccessError.Tag {
		case sharing.SharingFileAccessErrorNoPermission:
			return assetstore.CauseAuth
		case sharing.SharingFileAccessErrorInvalidFile:
			return assetstore.CauseNotFound
		}
	}
	return assetstore.CauseOther
}

func statusCause(status int) assetstore.Cause {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return assetstore.CauseAuth
	case status == http.StatusTooManyRequests || status >= 500:
		return assetstore.CauseTransport
	}
	return assetstore.CauseOther
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
