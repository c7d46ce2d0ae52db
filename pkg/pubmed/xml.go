package pubmed

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/david1005910/Bio2/engine/domain"
)

// articleSet mirrors the efetch XML layout, only the fields we consume.
type articleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Medline struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Sections []abstractSection `xml:"AbstractText"`
			} `xml:"Abstract"`
			Authors []struct {
				LastName string `xml:"LastName"`
				ForeName string `xml:"ForeName"`
			} `xml:"AuthorList>Author"`
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year  string `xml:"Year"`
						Month string `xml:"Month"`
						Day   string `xml:"Day"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
		} `xml:"Article"`
		Keywords []string `xml:"KeywordList>Keyword"`
		Mesh     []string `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	} `xml:"MedlineCitation"`
	Data struct {
		References []struct {
			IDs []articleID `xml:"ArticleIdList>ArticleId"`
		} `xml:"ReferenceList>Reference"`
	} `xml:"PubmedData"`
}

type abstractSection struct {
	Label string `xml:"Label,attr"`
	Text  string `xml:",chardata"`
}

type articleID struct {
	Type  string `xml:"IdType,attr"`
	Value string `xml:",chardata"`
}

// ParseArticleSet decodes an efetch XML response into domain papers.
// Articles without a PMID are dropped.
func ParseArticleSet(data []byte) ([]domain.Paper, error) {
	var set articleSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("pubmed: parse efetch xml: %w", err)
	}

	papers := make([]domain.Paper, 0, len(set.Articles))
	for _, a := range set.Articles {
		pmid := strings.TrimSpace(a.Medline.PMID)
		if pmid == "" {
			continue
		}
		p := domain.Paper{
			PMID:        pmid,
			Title:       strings.TrimSpace(a.Medline.Article.Title),
			Abstract:    joinAbstract(a.Medline.Article.Abstract.Sections),
			Journal:     strings.TrimSpace(a.Medline.Article.Journal.Title),
			PublishedAt: parsePubDate(a.Medline.Article.Journal.Issue.PubDate.Year, a.Medline.Article.Journal.Issue.PubDate.Month, a.Medline.Article.Journal.Issue.PubDate.Day),
		}
		for _, au := range a.Medline.Article.Authors {
			name := strings.TrimSpace(strings.TrimSpace(au.ForeName) + " " + strings.TrimSpace(au.LastName))
			if name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		for _, kw := range a.Medline.Keywords {
			if kw = strings.TrimSpace(kw); kw != "" {
				p.Keywords = append(p.Keywords, kw)
			}
		}
		for _, mh := range a.Medline.Mesh {
			if mh = strings.TrimSpace(mh); mh != "" {
				p.Keywords = append(p.Keywords, mh)
			}
		}
		for _, ref := range a.Data.References {
			for _, id := range ref.IDs {
				if id.Type == "pubmed" && strings.TrimSpace(id.Value) != "" {
					p.References = append(p.References, strings.TrimSpace(id.Value))
				}
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// joinAbstract flattens a structured abstract, keeping section labels.
func joinAbstract(sections []abstractSection) string {
	if len(sections) == 1 {
		return strings.TrimSpace(sections[0].Text)
	}
	var parts []string
	for _, s := range sections {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		if s.Label != "" {
			parts = append(parts, s.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func parsePubDate(year, month, day string) time.Time {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return time.Time{}
	}
	m := time.January
	month = strings.TrimSpace(month)
	if n, err := strconv.Atoi(month); err == nil && n >= 1 && n <= 12 {
		m = time.Month(n)
	} else if len(month) >= 3 {
		if mm, ok := months[strings.ToLower(month[:3])]; ok {
			m = mm
		}
	}
	d := 1
	if n, err := strconv.Atoi(strings.TrimSpace(day)); err == nil && n >= 1 && n <= 31 {
		d = n
	}
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
