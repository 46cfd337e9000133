package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/tikz/localrmsd/align"
	"github.com/tikz/localrmsd/api"
	"github.com/tikz/localrmsd/chart"
	"github.com/tikz/localrmsd/compat"
	"github.com/tikz/localrmsd/pdb"
	"github.com/tikz/localrmsd/rmsd"
	"github.com/tikz/localrmsd/store"
	"github.com/tikz/localrmsd/uniprot"
)

func cmdRMSD(a *app, args []string) error {
	fs := newFlagSet("rmsd", a.stderr)
	chainA := fs.StringP("chain-a", "1", "", "chain of the first structure (default: first common chain)")
	chainB := fs.StringP("chain-b", "2", "", "chain of the second structure (default: first common chain)")
	fs.IntP("window", "w", rmsd.DefaultWindow, "window size in residues")
	fs.String("on-incompatible", "ask", "abort, continue or ask when the chains share no UniProt accession")
	fs.Int("workers", 1, "goroutines computing the windows")
	fs.String("rcsb-url", pdb.DefaultRCSBURL, "RCSB download prefix")
	fs.String("sifts-url", pdb.DefaultSIFTSURL, "PDBe SIFTS mappings endpoint")
	plot := fs.Bool("plot", false, "save the chart as PNG under --plot-dir")
	fs.String("plot-dir", "plots", "directory for charts")
	save := fs.Bool("save", false, "store the analysis in the run history")
	fs.String("db-path", "localrmsd.db", "run history database")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return fmt.Errorf("%w: localrmsd rmsd <pdbA> <pdbB> [flags]", errUsage)
	}

	ctx := context.Background()
	eng := a.engine()
	sa, sb, err := eng.Fetch(ctx, pos[0], pos[1])
	if err != nil {
		return err
	}
	printHeader(a.stdout, sa)
	printHeader(a.stdout, sb)
	fmt.Fprintln(a.stdout)

	res, err := eng.LocalRMSD(ctx, sa, sb, *chainA, *chainB, a.cfg.Window)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Chains: %s:%s vs %s:%s\n", res.A, res.ChainA, res.B, res.ChainB)
	printCompatibility(a.stdout, res.Compatibility)
	if res.Outcome == align.Cancelled {
		fmt.Fprintln(a.stdout, "Analysis cancelled.")
		return nil
	}

	fmt.Fprintf(a.stdout, "Common length: %d residues, window %d\n", res.Length, res.Window)
	fmt.Fprintf(a.stdout, "Global RMSD: %.3f Å\n\n", res.GlobalRMS)
	printSeries(a.stdout, res.Series)

	if *plot {
		path, err := chart.FromResult(res).Save(a.cfg.PlotDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "\nChart saved to %s\n", path)
	}

	if *save {
		st, err := store.Open(a.cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.Save(ctx, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Saved as run %s\n", run.ID)
	}

	return nil
}

func cmdAlign(a *app, args []string) error {
	fs := newFlagSet("align", a.stderr)
	chain := fs.StringP("chain", "c", "", "chain used for the fit (default: first common chain)")
	out := fs.StringP("out", "o", "", "output file (default: <B>_aligned_to_<A>.pdb)")
	fs.String("rcsb-url", pdb.DefaultRCSBURL, "RCSB download prefix")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 2 {
		return fmt.Errorf("%w: localrmsd align <pdbA> <pdbB> [flags]", errUsage)
	}

	eng := align.New(a.source(), nil)
	eng.Logger = a.log
	res, err := eng.AlignForDisplay(context.Background(), align.DisplayRequest{A: pos[0], B: pos[1], Chain: *chain})
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = fmt.Sprintf("%s_aligned_to_%s.pdb", res.B, res.A)
	}
	if err := res.Transformed.WriteFile(path, ""); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Chain: %s, %d matched residues\n", res.Chain, res.Matched)
	fmt.Fprintf(a.stdout, "Global RMSD: %.3f Å\n", res.GlobalRMS)
	fmt.Fprintf(a.stdout, "%s superposed onto %s written to %s\n", res.B, res.A, path)

	return nil
}

func cmdPDBs(a *app, args []string) error {
	fs := newFlagSet("pdbs", a.stderr)
	best := fs.Bool("best", false, "list the SIFTS best structures instead of the UniProt cross references")
	fs.String("uniprot-url", uniprot.DefaultBaseURL, "UniProt REST endpoint")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: localrmsd pdbs <accession> [flags]", errUsage)
	}
	acc := strings.ToUpper(pos[0])
	if !uniprot.IsAccession(acc) {
		return fmt.Errorf("%w: %q is not a UniProt accession", errUsage, pos[0])
	}

	ctx := context.Background()
	c := a.uniprot()

	var pdbs []uniprot.PDB
	if *best {
		pdbs, err = c.BestStructures(ctx, acc)
	} else {
		var entry *uniprot.UniProt
		entry, err = c.Entry(ctx, acc)
		if err == nil {
			fmt.Fprintf(a.stdout, "%s %s: %s (%s)\n\n", entry.ID, entry.Name, entry.Protein, entry.Organism)
			pdbs = entry.PDBs
		}
	}
	if err != nil {
		return err
	}

	if len(pdbs) == 0 {
		fmt.Fprintf(a.stdout, "No PDB structures for %s\n", acc)
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PDB\tMETHOD\tRESOLUTION\tCHAINS")
	for _, p := range pdbs {
		res := "-"
		if p.Resolution > 0 {
			res = fmt.Sprintf("%.2f Å", p.Resolution)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Method, res, p.Chains)
	}
	return tw.Flush()
}

func cmdSearch(a *app, args []string) error {
	fs := newFlagSet("search", a.stderr)
	size := fs.IntP("size", "n", uniprot.DefaultSearchSize, "maximum number of results")
	fs.String("uniprot-url", uniprot.DefaultBaseURL, "UniProt REST endpoint")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) == 0 {
		return fmt.Errorf("%w: localrmsd search <query> [flags]", errUsage)
	}

	results, err := a.uniprot().Search(context.Background(), strings.Join(pos, " "), *size)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(a.stdout, "No results")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCESSION\tNAME\tPROTEIN\tORGANISM\tLENGTH")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Accession, r.Name, r.Protein, r.Organism, r.Length)
	}
	return tw.Flush()
}

func cmdHistory(a *app, args []string) error {
	fs := newFlagSet("history", a.stderr)
	limit := fs.IntP("limit", "n", store.DefaultListLimit, "maximum number of runs")
	structure := fs.String("structure", "", "only runs involving this structure")
	fs.String("db-path", "localrmsd.db", "run history database")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 0 {
		return fmt.Errorf("%w: localrmsd history [flags]", errUsage)
	}

	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List(context.Background(), strings.ToUpper(*structure), *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tA\tB\tWINDOW\tLENGTH\tGLOBAL RMSD\tMAX")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s:%s\t%s:%s\t%d\t%d\t%.3f\t%.3f @ %d\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.A, r.ChainA, r.B, r.ChainB,
			r.Window, r.Length, r.GlobalRMS, r.Stats.Max, r.Stats.MaxPosition)
	}
	return tw.Flush()
}

func cmdShow(a *app, args []string) error {
	fs := newFlagSet("show", a.stderr)
	plot := fs.Bool("plot", false, "save the chart as PNG under --plot-dir")
	fs.String("plot-dir", "plots", "directory for charts")
	fs.String("db-path", "localrmsd.db", "run history database")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("%w: localrmsd show <run-id> [flags]", errUsage)
	}

	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := st.Get(context.Background(), pos[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Run %s (%s)\n", r.ID, r.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(a.stdout, "Chains: %s:%s vs %s:%s, compatibility %s\n", r.A, r.ChainA, r.B, r.ChainB, r.Verdict)
	fmt.Fprintf(a.stdout, "Common length: %d residues, window %d\n", r.Length, r.Window)
	fmt.Fprintf(a.stdout, "Global RMSD: %.3f Å\n\n", r.GlobalRMS)
	printSeries(a.stdout, r.Series)

	if *plot {
		c := chart.Chart{A: r.A, B: r.B, ChainA: r.ChainA, ChainB: r.ChainB, Window: r.Window, Series: r.Series}
		path, err := c.Save(a.cfg.PlotDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "\nChart saved to %s\n", path)
	}

	return nil
}

func cmdServe(a *app, args []string) error {
	fs := newFlagSet("serve", a.stderr)
	fs.String("listen", ":8080", "address to listen on")
	fs.Int("workers", 1, "goroutines computing the windows of each analysis")
	fs.String("rcsb-url", pdb.DefaultRCSBURL, "RCSB download prefix")
	fs.String("sifts-url", pdb.DefaultSIFTSURL, "PDBe SIFTS mappings endpoint")
	fs.String("uniprot-url", uniprot.DefaultBaseURL, "UniProt REST endpoint")
	fs.String("db-path", "localrmsd.db", "run history database")
	origins := fs.StringSlice("cors-origin", nil, "allowed CORS origins (default: any)")

	pos, err := a.load(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 0 {
		return fmt.Errorf("%w: localrmsd serve [flags]", errUsage)
	}

	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := a.engine()
	eng.Confirm = nil

	h := api.NewHandler(eng, st, a.uniprot())
	h.Logger = a.log
	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           api.NewRouter(h, *origins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		a.log.Info("starting API server", "addr", srv.Addr, "db", a.cfg.DBPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printHeader(w io.Writer, p *pdb.PDB) {
	fmt.Fprintf(w, "%s", p.ID)
	if p.Title != "" {
		fmt.Fprintf(w, "  %s", p.Title)
	}
	fmt.Fprintln(w)

	var meta []string
	if p.Classification != "" {
		meta = append(meta, p.Classification)
	}
	if p.Method != "" {
		meta = append(meta, p.Method)
	}
	if p.Resolution > 0 {
		meta = append(meta, fmt.Sprintf("%.2f Å", p.Resolution))
	}
	if p.Date != nil {
		meta = append(meta, p.Date.Format(time.DateOnly))
	}
	if len(meta) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(meta, " | "))
	}
}

func printCompatibility(w io.Writer, res compat.Result) {
	switch res.Verdict {
	case compat.Compatible:
		fmt.Fprintf(w, "Compatibility: %s, shared UniProt %s\n", res.Verdict, strings.Join(res.Shared, ", "))
	case compat.LikelyIncompatible:
		fmt.Fprintf(w, "Compatibility: %s, UniProt %v vs %v\n", res.Verdict, res.AccessionsA, res.AccessionsB)
	default:
		fmt.Fprintf(w, "Compatibility: %s\n", res.Verdict)
	}
}

func printSeries(w io.Writer, s rmsd.Series) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Position\tRMSD (Å)\t")
	for _, p := range s {
		fmt.Fprintf(tw, "%d\t%.3f\t\n", p.Position, p.RMSD)
	}
	tw.Flush()

	st := s.Stats()
	fmt.Fprintf(w, "\nMean: %.3f Å  SD: %.3f Å  Max: %.3f Å at %d  Min: %.3f Å\n",
		st.Mean, st.StdDev, st.Max, st.MaxPosition, st.Min)
}
