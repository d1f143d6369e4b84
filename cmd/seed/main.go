package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"library-lending/library"
)

// Seeds a demo database: wipes any existing files, loads a small catalogue
// and member roster, and issues a few loans so the ledger is not empty.
func main() {
	cfg, err := library.LoadConfig("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Clean up any existing database files
	fmt.Println("Cleaning up existing database files...")
	for _, suffix := range []string{"", "-shm", "-wal"} {
		if err := os.Remove(cfg.DBPath + suffix); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: Could not remove %s%s: %v\n", cfg.DBPath, suffix, err)
		}
	}

	store, err := library.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	catalog := library.NewCatalog(store)
	engine := library.NewEngine(store, cfg.Policy, nil)

	books := []library.BookInput{
		{Title: "1984", Author: "George Orwell", ISBN: "9780451524935", Category: "Fiction", RackLocation: "A1", TotalCopies: 3},
		{Title: "Animal Farm", Author: "George Orwell", ISBN: "9780451526342", Category: "Fiction", RackLocation: "A1", TotalCopies: 2},
		{Title: "The Art of War", Author: "Sun Tzu", ISBN: "9781590302255", Category: "Philosophy", RackLocation: "B3", TotalCopies: 1},
		{Title: "The Fellowship of the Ring", Author: "J.R.R. Tolkien", ISBN: "9780547928210", Category: "Fantasy", RackLocation: "C2", TotalCopies: 4},
		{Title: "Romeo and Juliet", Author: "William Shakespeare", ISBN: "9780743477116", Category: "Drama", RackLocation: "D1", TotalCopies: 2},
		{Title: "The Three Musketeers", Author: "Alexandre Dumas", ISBN: "9780140367470", Category: "Adventure", RackLocation: "C4", TotalCopies: 2},
	}
	members := []library.MemberInput{
		{Name: "Alice Hart", Email: "alice@example.com", Phone: "555-0101", Password: "alice-demo"},
		{Name: "Bob Finch", Email: "bob@example.com", Phone: "555-0102", Password: "bob-demo"},
		{Name: "Charlie Wren", Email: "charlie@example.com", Phone: "555-0103", Password: "charlie-demo"},
	}

	var bookIDs, memberIDs []string
	successCount, errorCount := 0, 0

	fmt.Println("Seeding catalogue...")
	for _, in := range books {
		b, err := catalog.AddBook(ctx, in)
		if err != nil {
			fmt.Printf("ERROR adding %q: %v\n", in.Title, err)
			errorCount++
			continue
		}
		bookIDs = append(bookIDs, b.ID)
		successCount++
	}

	fmt.Println("Seeding members...")
	for _, in := range members {
		m, err := catalog.AddMember(ctx, in)
		if err != nil {
			fmt.Printf("ERROR adding %q: %v\n", in.Name, err)
			errorCount++
			continue
		}
		memberIDs = append(memberIDs, m.ID)
		successCount++
	}

	// A few open loans so the dashboard and ledger have something to show.
	if len(memberIDs) >= 2 && len(bookIDs) >= 3 {
		fmt.Println("Issuing demo loans...")
		demo := []struct{ member, book string }{
			{memberIDs[0], bookIDs[0]},
			{memberIDs[0], bookIDs[3]},
			{memberIDs[1], bookIDs[2]},
		}
		for _, d := range demo {
			if _, err := engine.IssueBook(ctx, d.member, d.book); err != nil {
				fmt.Printf("ERROR issuing demo loan: %v\n", err)
				errorCount++
				continue
			}
			successCount++
		}
	}

	fmt.Printf("\nSeed complete!\n")
	fmt.Printf("Successful operations: %d\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	seeded, err := catalog.ListBooks(ctx)
	if err != nil {
		fmt.Printf("Error retrieving books: %v\n", err)
		return
	}
	fmt.Println("\nSeeded catalogue:")
	fmt.Printf("%-36s %-35s %-25s %s\n", "ID", "Title", "Author", "Available")
	fmt.Println(strings.Repeat("-", 110))
	for _, b := range seeded {
		fmt.Printf("%-36s %-35s %-25s %d/%d\n", b.ID, b.Title, b.Author, b.AvailableCopies, b.TotalCopies)
	}
}
