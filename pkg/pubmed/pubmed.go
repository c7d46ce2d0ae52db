// Package pubmed is a client for the NCBI E-utilities API. It searches
// PubMed, fetches article metadata in batches, and maps the efetch XML
// into domain papers ready for ingestion.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
	"github.com/david1005910/Bio2/pkg/fn"
	"github.com/david1005910/Bio2/pkg/resilience"
)

// DefaultBaseURL is the E-utilities endpoint root.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

// FetchBatchSize is the number of PMIDs per efetch request.
const FetchBatchSize = 100

// ErrAPI wraps non-200 responses from the E-utilities API.
var ErrAPI = fmt.Errorf("pubmed: api error")

// Options configures the client.
type Options struct {
	BaseURL string
	// APIKey raises the NCBI rate limit from 3 to 10 requests per second.
	APIKey  string
	Timeout time.Duration
}

// Client is a rate-limited PubMed E-utilities client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *resilience.Limiter
	retry      fn.RetryOpts
}

// NewClient builds a client. Without an API key NCBI allows 3 req/s;
// with one, 10 req/s.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	perSecond := 3.0
	if opts.APIKey != "" {
		perSecond = 10.0
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    resilience.NewLimiter(perSecond, 1),
		retry:      fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 10 * time.Second, Jitter: true},
	}
}

// DateRange restricts a search by publication date, YYYY/MM/DD.
type DateRange struct {
	Start string
	End   string
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search returns PMIDs matching the query, sorted by relevance. Field
// tags like "cancer immunotherapy[Title/Abstract]" pass through as-is.
func (c *Client) Search(ctx context.Context, query string, max int, dr *DateRange) ([]string, error) {
	if max <= 0 {
		max = 100
	}
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(max)},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}
	if dr != nil {
		params.Set("mindate", dr.Start)
		params.Set("maxdate", dr.End)
		params.Set("datetype", "pdat")
	}

	body, err := c.get(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, err
	}
	var sr esearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("pubmed: parse search results: %w", err)
	}
	return sr.Result.IDList, nil
}

// Fetch retrieves full metadata for the given PMIDs, batching requests.
// Articles that fail to parse are skipped, not fatal.
func (c *Client) Fetch(ctx context.Context, pmids []string) ([]domain.Paper, error) {
	var papers []domain.Paper
	for start := 0; start < len(pmids); start += FetchBatchSize {
		end := min(start+FetchBatchSize, len(pmids))
		params := url.Values{
			"db":      {"pubmed"},
			"id":      {strings.Join(pmids[start:end], ",")},
			"retmode": {"xml"},
			"rettype": {"abstract"},
		}
		body, err := c.get(ctx, "efetch.fcgi", params)
		if err != nil {
			return papers, err
		}
		batch, err := ParseArticleSet(body)
		if err != nil {
			return papers, err
		}
		papers = append(papers, batch...)
	}
	return papers, nil
}

// FetchOne retrieves one paper, or nil if PubMed returns nothing for the PMID.
func (c *Client) FetchOne(ctx context.Context, pmid string) (*domain.Paper, error) {
	papers, err := c.Fetch(ctx, []string{pmid})
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, nil
	}
	return &papers[0], nil
}

type elinkResponse struct {
	LinkSets []struct {
		LinkSetDBs []struct {
			LinkName string   `json:"linkname"`
			Links    []string `json:"links"`
		} `json:"linksetdbs"`
	} `json:"linksets"`
}

// Related returns PMIDs PubMed considers neighbors of the given paper.
func (c *Client) Related(ctx context.Context, pmid string, limit int) ([]string, error) {
	params := url.Values{
		"dbfrom":  {"pubmed"},
		"db":      {"pubmed"},
		"id":      {pmid},
		"cmd":     {"neighbor_score"},
		"retmode": {"json"},
	}
	body, err := c.get(ctx, "elink.fcgi", params)
	if err != nil {
		return nil, err
	}
	var er elinkResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("pubmed: parse elink results: %w", err)
	}
	for _, ls := range er.LinkSets {
		for _, db := range ls.LinkSetDBs {
			if db.LinkName != "pubmed_pubmed" {
				continue
			}
			if limit > 0 && len(db.Links) > limit {
				return db.Links[:limit], nil
			}
			return db.Links, nil
		}
	}
	return nil, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	u := c.baseURL + endpoint + "?" + params.Encode()

	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]byte] {
		if err := c.limiter.Wait(ctx); err != nil {
			return fn.Err[[]byte](err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fn.Err[[]byte](err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fn.Err[[]byte](err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fn.Err[[]byte](fmt.Errorf("%w: %s: status %d: %s", ErrAPI, endpoint, resp.StatusCode, snippet))
		}
		return fn.FromPair(io.ReadAll(resp.Body))
	})
	body, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("pubmed: %s: %w", endpoint, err)
	}
	return body, nil
}
