package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/document"
	"github.com/xhad/docchat/pkg/llm"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// runCLI parses one document and then chats about it on the terminal.
func runCLI(ctx context.Context, a *app, flags Flags) error {
	req := document.ParseRequest{
		URL:    flags.URL,
		Sample: flags.Sample,
	}
	source := flags.URL
	if flags.PDF != "" {
		data, err := os.ReadFile(flags.PDF)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", flags.PDF, err)
		}
		req.Filename = filepath.Base(flags.PDF)
		req.Data = data
		source = flags.PDF
	}
	if flags.Sample {
		source = "sample document"
	}

	color.Blue("\nParsing %s\n", source)
	spinner := getSpinner("📄 Running OCR...")
	doc, err := a.service.Parse(ctx, req)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	if doc.Fallback {
		color.Yellow("\n⚠ OCR failed, showing the sample document instead\n")
	}
	color.Green("\n✓ Parsed %d pages with %d images (%d stored) using %s\n",
		len(doc.Pages), len(doc.Images), len(doc.StoredAssets), doc.Model)

	if flags.Out != "" {
		if err := writeDocument(flags.Out, doc); err != nil {
			return err
		}
		color.Green("\n✓ Wrote document to %s\n", flags.Out)
	}

	if a.chat == nil {
		color.Yellow("\nChat is not configured; set an LLM API key to ask questions.\n")
		return nil
	}
	return chatLoop(ctx, a.chat, doc, flags.Stream)
}

// writeDocument writes document.json plus one markdown file per page.
func writeDocument(dir string, doc *models.Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "document.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	bar := getProgressBar(len(doc.Pages), "💾 Writing pages...")
	for _, page := range doc.Pages {
		name := filepath.Join(dir, fmt.Sprintf("page-%d.md", page.Index))
		if err := os.WriteFile(name, []byte(page.Markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write page %d: %w", page.Index, err)
		}
		if page.HTML != "" {
			name = filepath.Join(dir, fmt.Sprintf("page-%d.html", page.Index))
			if err := os.WriteFile(name, []byte(page.HTML), 0o644); err != nil {
				return fmt.Errorf("failed to write page %d: %w", page.Index, err)
			}
		}
		bar.Add(1)
	}
	bar.Finish()
	return nil
}

func chatLoop(ctx context.Context, chat *llm.ChatEngine, doc *models.Document, streaming bool) error {
	color.Cyan("\nChat with your document (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	toolPrompt := color.New(color.FgYellow, color.Faint).PrintfFunc()

	var history []llm.Message

	for ctx.Err() == nil {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if q := strings.ToLower(query); q == "exit" || q == "quit" {
			break
		}

		history = append(history, llm.Message{Role: "user", Content: query})
		req := llm.ChatRequest{
			Messages:        history,
			DocumentContent: doc.Text,
			SessionID:       doc.SessionID,
		}

		var answer string
		if streaming {
			events, err := chat.ChatStream(ctx, req)
			if err != nil {
				color.Red("Error: %v\n", err)
				history = history[:len(history)-1]
				continue
			}

			var b strings.Builder
			assistantPrompt("\nAssistant: ")
			for ev := range events {
				switch ev.Type {
				case llm.EventText:
					b.WriteString(ev.Text)
					assistantPrompt("%s", ev.Text)
				case llm.EventToolCall:
					toolPrompt("[%s %s] ", ev.ToolCall.Name, string(ev.ToolCall.Args))
				case llm.EventError:
					color.Red("\nError: %v\n", ev.Err)
				}
			}
			fmt.Print("\n")
			answer = b.String()
		} else {
			responseSpinner := getSpinner("🤖 Generating response...")
			resp, err := chat.Chat(ctx, req)
			responseSpinner.Finish()
			fmt.Print("\r")

			if err != nil {
				color.Red("Error: %v\n", err)
				history = history[:len(history)-1]
				continue
			}
			assistantPrompt("Assistant: %s\n", resp)
			answer = resp
		}

		if answer != "" {
			history = append(history, llm.Message{Role: "assistant", Content: answer})
		}
	}

	return nil
}
