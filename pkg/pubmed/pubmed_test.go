package pubmed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleEfetch = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>12345678</PMID>
      <Article>
        <ArticleTitle>CRISPR-Cas9 gene editing in T cells</ArticleTitle>
        <Abstract>
          <AbstractText Label="BACKGROUND">Gene editing is promising.</AbstractText>
          <AbstractText Label="RESULTS">Edited T cells persisted.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author>
            <LastName>Smith</LastName>
            <ForeName>Jane</ForeName>
          </Author>
          <Author>
            <LastName>Doe</LastName>
          </Author>
        </AuthorList>
        <Journal>
          <Title>Nature Medicine</Title>
          <JournalIssue>
            <PubDate>
              <Year>2023</Year>
              <Month>Apr</Month>
              <Day>15</Day>
            </PubDate>
          </JournalIssue>
        </Journal>
      </Article>
      <KeywordList>
        <Keyword>CRISPR</Keyword>
        <Keyword>immunotherapy</Keyword>
      </KeywordList>
      <MeshHeadingList>
        <MeshHeading>
          <DescriptorName>Gene Editing</DescriptorName>
        </MeshHeading>
      </MeshHeadingList>
    </MedlineCitation>
    <PubmedData>
      <ReferenceList>
        <Reference>
          <ArticleIdList>
            <ArticleId IdType="pubmed">11111111</ArticleId>
            <ArticleId IdType="doi">10.1000/x</ArticleId>
          </ArticleIdList>
        </Reference>
        <Reference>
          <ArticleIdList>
            <ArticleId IdType="pubmed">22222222</ArticleId>
          </ArticleIdList>
        </Reference>
      </ReferenceList>
    </PubmedData>
  </PubmedArticle>
  <PubmedArticle>
    <MedlineCitation>
      <PMID></PMID>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func TestParseArticleSet(t *testing.T) {
	papers, err := ParseArticleSet([]byte(sampleEfetch))
	if err != nil {
		t.Fatal(err)
	}
	if len(papers) != 1 {
		t.Fatalf("expected 1 paper (empty PMID dropped), got %d", len(papers))
	}
	p := papers[0]
	if p.PMID != "12345678" {
		t.Errorf("pmid = %q", p.PMID)
	}
	if p.Title != "CRISPR-Cas9 gene editing in T cells" {
		t.Errorf("title = %q", p.Title)
	}
	want := "BACKGROUND: Gene editing is promising. RESULTS: Edited T cells persisted."
	if p.Abstract != want {
		t.Errorf("abstract = %q, want %q", p.Abstract, want)
	}
	if len(p.Authors) != 2 || p.Authors[0] != "Jane Smith" || p.Authors[1] != "Doe" {
		t.Errorf("authors = %v", p.Authors)
	}
	if p.Journal != "Nature Medicine" {
		t.Errorf("journal = %q", p.Journal)
	}
	if got := p.PublishedAt; got.Year() != 2023 || got.Month() != time.April || got.Day() != 15 {
		t.Errorf("published at = %v", got)
	}
	if len(p.Keywords) != 3 {
		t.Errorf("keywords (incl. MeSH) = %v", p.Keywords)
	}
	if len(p.References) != 2 || p.References[0] != "11111111" || p.References[1] != "22222222" {
		t.Errorf("references = %v", p.References)
	}
}

func TestParsePubDate(t *testing.T) {
	cases := []struct {
		year, month, day string
		want             time.Time
	}{
		{"2023", "Apr", "15", time.Date(2023, 4, 15, 0, 0, 0, 0, time.UTC)},
		{"2021", "7", "", time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"2020", "", "", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"", "Jan", "1", time.Time{}},
	}
	for _, tc := range cases {
		if got := parsePubDate(tc.year, tc.month, tc.day); !got.Equal(tc.want) {
			t.Errorf("parsePubDate(%q,%q,%q) = %v, want %v", tc.year, tc.month, tc.day, got, tc.want)
		}
	}
}

func TestSearch(t *testing.T) {
	var gotPath, gotTerm, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTerm = r.URL.Query().Get("term")
		gotKey = r.URL.Query().Get("api_key")
		w.Write([]byte(`{"esearchresult":{"idlist":["111","222","333"]}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "secret"})
	pmids, err := c.Search(context.Background(), "cancer immunotherapy[Title/Abstract]", 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(pmids) != 3 || pmids[0] != "111" {
		t.Fatalf("pmids = %v", pmids)
	}
	if gotPath != "/esearch.fcgi" {
		t.Errorf("path = %q", gotPath)
	}
	if gotTerm != "cancer immunotherapy[Title/Abstract]" {
		t.Errorf("term = %q", gotTerm)
	}
	if gotKey != "secret" {
		t.Errorf("api key not sent")
	}
}

func TestFetchBatches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(sampleEfetch))
	}))
	defer srv.Close()

	pmids := make([]string, 150)
	for i := range pmids {
		pmids[i] = "1"
	}
	c := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "k"})
	papers, err := c.Fetch(context.Background(), pmids)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 efetch batches for 150 pmids, got %d", calls)
	}
	if len(papers) != 2 {
		t.Errorf("papers = %d", len(papers))
	}
}

func TestGetRetriesThenFails(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "k"})
	c.retry.InitialWait = time.Millisecond
	c.retry.Jitter = false

	_, err := c.Search(context.Background(), "anything", 10, nil)
	if !errors.Is(err, ErrAPI) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRelated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"linksets":[{"linksetdbs":[
			{"linkname":"pubmed_pubmed_citedin","links":["9"]},
			{"linkname":"pubmed_pubmed","links":["1","2","3","4"]}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/", APIKey: "k"})
	ids, err := c.Related(context.Background(), "555", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != "1" {
		t.Fatalf("related = %v", ids)
	}
}
