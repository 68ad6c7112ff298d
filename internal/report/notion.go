package report

import (
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/sells-group/review-pulse/internal/model"
)

// NotionPageRequest builds the create-page request for publishing a pulse
// under the configured parent page.
func NotionPageRequest(parentPageID, product string, s model.PulseSummary) *notionapi.PageCreateRequest {
	title := fmt.Sprintf("%s Weekly Pulse (%s)", product, s.Period.End.Format("Jan 02, 2006"))

	children := []notionapi.Block{
		paragraph(fmt.Sprintf("Period: %s - %s · %d reviews · %d with issues",
			s.Period.Start.Format("January 02"), s.Period.End.Format("January 02, 2006"),
			s.TotalReviews, s.ReviewsWithIssues)),
		heading2("🔍 Top Issues This Week"),
	}

	if len(s.Themes) == 0 {
		children = append(children, paragraph("No significant issues found this week."))
	}
	for i, theme := range s.Themes {
		children = append(children, heading3(fmt.Sprintf("%d. %s", i+1, theme.Name)))
		children = append(children, paragraph(fmt.Sprintf("%d mentions (%.1f%% of reviews) · Avg rating %.1f/5",
			theme.Count, theme.Percentage, theme.AvgRating)))
		for _, q := range theme.Quotes {
			children = append(children, quote(fmt.Sprintf("%s %s", q.Text, stars(q.Rating))))
		}
	}

	children = append(children, divider(), heading2("💡 Recommended Actions"))
	if len(s.Actions) == 0 {
		children = append(children, paragraph("No actions generated."))
	}
	for _, action := range s.Actions {
		children = append(children,
			bullet(fmt.Sprintf("%s %s: %s (%s, addresses: %s)",
				emoji(action.Priority), action.Title, action.Description, badge(action.Effort), action.AddressesTheme)))
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentPageID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Type:  notionapi.PropertyTypeTitle,
				Title: richText(title),
			},
		},
		Children: children,
	}
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: content}},
	}
}

func heading2(text string) notionapi.Block {
	return &notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading2},
		Heading2:   notionapi.Heading{RichText: richText(text)},
	}
}

func heading3(text string) notionapi.Block {
	return &notionapi.Heading3Block{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading3},
		Heading3:   notionapi.Heading{RichText: richText(text)},
	}
}

func paragraph(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
		Paragraph:  notionapi.Paragraph{RichText: richText(text)},
	}
}

func quote(text string) notionapi.Block {
	return &notionapi.QuoteBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeQuote},
		Quote:      notionapi.Quote{RichText: richText(text)},
	}
}

func bullet(text string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock:       notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeBulletedListItem},
		BulletedListItem: notionapi.ListItem{RichText: richText(text)},
	}
}

func divider() notionapi.Block {
	return &notionapi.DividerBlock{
		BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeDivider},
	}
}
