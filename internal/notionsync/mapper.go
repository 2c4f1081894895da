package notionsync

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-recurring/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Notion ledger database.
const (
	propDescription     = "Description"
	propDate            = "Date"
	propAmount          = "Amount"
	propCategory        = "Category"
	propWallet          = "Wallet"
	propTransactionID   = "Transaction ID"
	propRecurringSource = "Recurring Source"
	propAutoGenerated   = "Auto Generated"
	propNotes           = "Notes"
	propImportedAt      = "Imported At"
)

// TransactionToNotionProperties converts a generated transaction to Notion properties.
// Maps fields to the ledger database schema:
// Description, Date, Amount, Category, Wallet, Transaction ID, Recurring Source,
// Auto Generated, Notes, Imported At
func TransactionToNotionProperties(tx domain.GeneratedTransaction) notionapi.Properties {
	props := notionapi.Properties{
		propDescription: notionapi.TitleProperty{
			Title: richText(tx.Title),
		},
		propDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: dateOf(tx.Date),
			},
		},
		propAmount: notionapi.NumberProperty{
			Number: tx.Amount.InexactFloat64(),
		},
		propTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.ID),
		},
		propAutoGenerated: notionapi.CheckboxProperty{
			Checkbox: tx.IsAutoGenerated,
		},
	}

	if tx.Category != "" {
		props[propCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Category,
			},
		}
	}

	if tx.Wallet != "" {
		props[propWallet] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: tx.Wallet,
			},
		}
	}

	if tx.RecurringSourceID != "" {
		props[propRecurringSource] = notionapi.RichTextProperty{
			RichText: richText(tx.RecurringSourceID),
		}
	}

	if tx.Description != "" {
		props[propNotes] = notionapi.RichTextProperty{
			RichText: richText(tx.Description),
		}
	}

	if !tx.CreatedAt.IsZero() {
		created := notionapi.Date(tx.CreatedAt)
		props[propImportedAt] = notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &created,
			},
		}
	}

	return props
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

func dateOf(d civil.Date) *notionapi.Date {
	nd := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
	return &nd
}

// extractTransactionID extracts the transaction ID from a Notion page's properties.
// Returns empty string if not found.
func extractTransactionID(page notionapi.Page) string {
	if prop, ok := page.Properties[propTransactionID]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(rt.RichText) > 0 {
				return rt.RichText[0].PlainText
			}
		}
	}
	return ""
}
