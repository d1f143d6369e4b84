package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"library-lending/library"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// CLI state shared by the subcommands, wired in the root PersistentPreRunE.
var (
	cfgPath string
	cfg     library.Config
	logger  *zap.Logger
	store   library.Store
	engine  *library.Engine
	catalog *library.Catalog
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "librarian",
		Short:         "Library catalogue, membership and lending tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			var err error
			if cfg, err = library.LoadConfig(cfgPath); err != nil {
				return err
			}
			if logger, err = zap.NewDevelopment(); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			if store, err = library.NewSQLiteStore(cfg.DBPath); err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			engine = library.NewEngine(store, cfg.Policy, logger)
			catalog = library.NewCatalog(store)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if store != nil {
				store.Close()
			}
			if logger != nil {
				logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "library.yaml", "path to config file")

	root.AddCommand(
		addBookCmd(), updateBookCmd(), removeBookCmd(), listBooksCmd(),
		addMemberCmd(), removeMemberCmd(), listMembersCmd(), resetPasswordCmd(),
		issueCmd(), returnCmd(), loansCmd(),
		statsCmd(), auditCmd(),
	)
	return root
}

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// authenticateMember prompts for and verifies the member's password.
func authenticateMember(ctx context.Context, memberID string) error {
	password, err := readPassword("Enter member password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	return catalog.AuthenticateMember(ctx, memberID, password)
}

// ------------------ Books ------------------

func addBookCmd() *cobra.Command {
	var in library.BookInput
	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a book to the catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := catalog.AddBook(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("Added book %q by %s (ID %s, %d copies)\n", b.Title, b.Author, b.ID, b.TotalCopies)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "book title")
	cmd.Flags().StringVar(&in.Author, "author", "", "book author")
	cmd.Flags().StringVar(&in.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.RackLocation, "rack", "", "rack location")
	cmd.Flags().IntVar(&in.TotalCopies, "copies", 1, "number of physical copies")
	return cmd
}

func updateBookCmd() *cobra.Command {
	var in library.BookUpdate
	cmd := &cobra.Command{
		Use:   "update-book <book-id>",
		Short: "Edit a catalogue entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := catalog.UpdateBook(cmd.Context(), args[0], in); err != nil {
				return err
			}
			fmt.Printf("Updated book %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "book title")
	cmd.Flags().StringVar(&in.Author, "author", "", "book author")
	cmd.Flags().StringVar(&in.ISBN, "isbn", "", "ISBN")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.RackLocation, "rack", "", "rack location")
	cmd.Flags().IntVar(&in.TotalCopies, "copies", 1, "number of physical copies")
	cmd.Flags().IntVar(&in.AvailableCopies, "available", 0, "available copies")
	return cmd
}

func removeBookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-book <book-id>",
		Short: "Remove a book (fails while copies are out)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := catalog.RemoveBook(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed book %s\n", args[0])
			return nil
		},
	}
}

func listBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-books",
		Short: "List the catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := catalog.ListBooks(cmd.Context())
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Println("No books in library.")
				return nil
			}
			fmt.Printf("%-36s %-30s %-20s %-14s %-10s %s\n", "ID", "Title", "Author", "ISBN", "Available", "Rack")
			fmt.Println(strings.Repeat("-", 120))
			for _, b := range books {
				fmt.Printf("%-36s %-30s %-20s %-14s %d/%-8d %s\n",
					b.ID, truncate(b.Title, 30), truncate(b.Author, 20),
					b.ISBN, b.AvailableCopies, b.TotalCopies, b.RackLocation)
			}
			return nil
		},
	}
}

// ------------------ Members ------------------

func addMemberCmd() *cobra.Command {
	var in library.MemberInput
	cmd := &cobra.Command{
		Use:   "add-member",
		Short: "Register a library member",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(fmt.Sprintf("Enter password for %s: ", in.Name))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			in.Password = password

			m, err := catalog.AddMember(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("Added member %s with membership ID %s (ID %s)\n", m.Name, m.MembershipID, m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "member name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone number")
	return cmd
}

func removeMemberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-member <member-id>",
		Short: "Remove a member (fails while they hold books)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := catalog.RemoveMember(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed member %s\n", args[0])
			return nil
		},
	}
}

func listMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-members",
		Short: "List registered members",
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := catalog.ListMembers(cmd.Context())
			if err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Println("No members registered.")
				return nil
			}
			fmt.Printf("%-36s %-25s %-12s %-25s %s\n", "ID", "Name", "Membership", "Email", "Borrowed")
			fmt.Println(strings.Repeat("-", 110))
			for _, m := range members {
				fmt.Printf("%-36s %-25s %-12s %-25s %d\n",
					m.ID, truncate(m.Name, 25), m.MembershipID, truncate(m.Email, 25), m.BorrowedBooks)
			}
			return nil
		},
	}
}

func resetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password <member-id>",
		Short: "Reset a member's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := catalog.GetMember(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			password, err := readPassword(fmt.Sprintf("Enter new password for %s (%s): ", m.Name, m.MembershipID))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			if err := catalog.ResetMemberPassword(cmd.Context(), m.ID, password); err != nil {
				return err
			}
			fmt.Printf("Password reset for %s\n", m.Name)
			return nil
		},
	}
}

// ------------------ Circulation ------------------

func issueCmd() *cobra.Command {
	var skipAuth bool
	cmd := &cobra.Command{
		Use:   "issue <member-id> <book-id>",
		Short: "Issue a book to a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, bookID := args[0], args[1]
			if !skipAuth {
				if err := authenticateMember(cmd.Context(), memberID); err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
			}

			loanID, err := engine.IssueBook(cmd.Context(), memberID, bookID)
			if err != nil {
				return err
			}
			loan, err := store.GetLoan(cmd.Context(), loanID)
			if err != nil {
				return err
			}
			fmt.Printf("Issued %q to %s (%s)\n", loan.BookTitle, loan.MemberName, loan.MembershipID)
			fmt.Printf("Loan ID: %s\n", loan.ID)
			fmt.Printf("Due: %s\n", loan.DueDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipAuth, "no-auth", false, "skip the member password check")
	return cmd
}

func returnCmd() *cobra.Command {
	var skipAuth bool
	cmd := &cobra.Command{
		Use:   "return <loan-id>",
		Short: "Process a book return and compute the fine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loan, err := store.GetLoan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !skipAuth {
				if err := authenticateMember(cmd.Context(), loan.MemberID); err != nil {
					return fmt.Errorf("authentication failed: %w", err)
				}
			}

			fine, err := engine.ReturnBook(cmd.Context(), loan.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Returned %q from %s\n", loan.BookTitle, loan.MemberName)
			if fine > 0 {
				fmt.Printf("Overdue fine: %d\n", fine)
			} else {
				fmt.Println("Returned on time, no fine.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipAuth, "no-auth", false, "skip the member password check")
	return cmd
}

func loansCmd() *cobra.Command {
	var filter library.LoanFilter
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List loan ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			loans, err := catalog.Loans(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(loans) == 0 {
				fmt.Println("No loans recorded.")
				return nil
			}
			now := time.Now()
			fmt.Printf("%-36s %-25s %-12s %-25s %-11s %-11s %-9s %s\n",
				"Loan ID", "Book", "Membership", "Member", "Issued", "Due", "Status", "Fine")
			fmt.Println(strings.Repeat("-", 140))
			for _, l := range loans {
				fmt.Printf("%-36s %-25s %-12s %-25s %-11s %-11s %-9s %d\n",
					l.ID, truncate(l.BookTitle, 25), l.MembershipID, truncate(l.MemberName, 25),
					l.IssuedAt.Format("2006-01-02"), l.DueDate.Format("2006-01-02"),
					library.Status(l, now), library.FineAmount(l, cfg.Policy, now))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.MemberID, "member", "", "filter by member ID")
	cmd.Flags().StringVar(&filter.BookID, "book", "", "filter by book ID")
	cmd.Flags().BoolVar(&filter.OnlyOpen, "open", false, "only open loans")
	return cmd
}

// ------------------ System ------------------

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := catalog.Stats(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("Books:      %d\n", st.Books)
			fmt.Printf("Members:    %d\n", st.Members)
			fmt.Printf("Open loans: %d\n", st.OpenLoans)
			fmt.Printf("Overdue:    %d\n", st.Overdue)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile lending counters against the loan ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			auditor := library.NewAuditor(store, logger)
			drifts, err := auditor.Audit(cmd.Context())
			if err != nil {
				return err
			}
			if len(drifts) == 0 {
				fmt.Println("All counters consistent with the loan ledger.")
				return nil
			}
			fmt.Printf("%-8s %-36s %-25s %-8s %s\n", "Kind", "ID", "Name", "Stored", "Actual")
			fmt.Println(strings.Repeat("-", 90))
			for _, d := range drifts {
				fmt.Printf("%-8s %-36s %-25s %-8d %d\n", d.Kind, d.ID, truncate(d.Name, 25), d.Stored, d.Actual)
			}
			if !repair {
				fmt.Println("\nRun with --repair to reset the counters from the ledger.")
				return nil
			}
			if err := auditor.Repair(cmd.Context(), drifts); err != nil {
				return err
			}
			fmt.Printf("Repaired %d counter(s).\n", len(drifts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "apply corrections")
	return cmd
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
