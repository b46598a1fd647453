/*
mscoal sets up a Bayesian multispecies-coalescent analysis: it reads a
species tree, an individual-to-species mapping, an optional set of topology
constraints, and one alignment per locus, then builds the coalescent-
consistent starting gene tree for every locus.

usage: mscoal [flags]... <alignment_file>...

positional arguments:

	<alignment_file>...	one alignment file per locus

flags:

	-c file
	  	constraints file (optional)
	-f format
	  	alignment format [fasta|phylip] (default "fasta")
	-m file
	  	individual-to-species mapping file
	-n int
	  	number of parallel processes
	-o string
	  	output prefix
	-s file
	  	species tree newick file
	-seed seed
	  	random seed (default derived from wall-clock time)

examples:

	mscoal -s species.nwk -m mapping.txt -o run1 locus1.fasta locus2.fasta
*/
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/evolbioinfo/goalign/align"
	"github.com/evolbioinfo/goalign/io/fasta"
	"github.com/evolbioinfo/goalign/io/phylip"
	"github.com/evolbioinfo/gotree/io/newick"

	"mscoal/internal/constraint"
	"mscoal/internal/initializer"
	"mscoal/internal/sptree"
)

const (
	Version      = "v0.1.0"
	ErrorMessage = "mscoal encountered an error ::"
	TimeFormat   = "2006-01-02_15-04-05"

	DefaultFormat = "fasta"
)

// Args holds the parsed command line, mirroring camus.go's own Args.
type Args struct {
	prefix         string
	format         string
	speciesFile    string
	mappingFile    string
	constraintFile string
	alignmentFiles []string
	nprocs         int
	seed           int64
}

func Usage() {
	fmt.Fprint(flag.CommandLine.Output(), // nolint
		"usage: mscoal [flags]... <alignment_file>...\n",
		"\n",
		"positional arguments:\n\n",
		"  <alignment_file>...\tone alignment file per locus\n",
		"\n",
		"flags:\n\n",
	)
	flag.PrintDefaults()
	fmt.Fprint(flag.CommandLine.Output(), // nolint
		"\n",
		"examples:\n\n",
		"\tmscoal -s species.nwk -m mapping.txt -o run1 locus1.fasta locus2.fasta\n\n",
	)
}

func parseArgs() Args {
	flag.Usage = Usage
	species := flag.String("s", "", "species tree newick `file`")
	mapping := flag.String("m", "", "individual-to-species mapping `file`")
	constraints := flag.String("c", "", "constraints `file` (optional)")
	prefix := flag.String("o", "", "output prefix")
	format := flag.String("f", DefaultFormat, "alignment `format` [fasta|phylip]")
	nprocs := flag.Int("n", 0, "number of parallel processes")
	seed := flag.Int64("seed", 0, "random `seed` (default derived from wall-clock time)")
	flag.Parse()

	if *species == "" || *mapping == "" {
		parserError("-s (species tree) and -m (mapping file) are required")
	}
	if flag.NArg() < 1 {
		parserError("at least one alignment file is required")
	}
	switch *format {
	case "fasta", "phylip":
	default:
		parserError(fmt.Sprintf("%q is not a valid alignment format: valid formats are \"fasta\" and \"phylip\"", *format))
	}

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}

	return Args{
		prefix:         *prefix,
		format:         *format,
		speciesFile:    *species,
		mappingFile:    *mapping,
		constraintFile: *constraints,
		alignmentFiles: flag.Args(),
		nprocs:         *nprocs,
		seed:           s,
	}
}

func parserError(message string) {
	fmt.Fprintln(os.Stderr, message+"\n")
	Usage()
	os.Exit(1)
}

func defaultPrefix() string {
	base := filepathBase(flag.Arg(0))
	return fmt.Sprintf("mscoal_%s_%s", base, time.Now().Local().Format(TimeFormat))
}

func filepathBase(s string) string {
	parts := strings.Split(s, string(os.PathSeparator))
	name := parts[len(parts)-1]
	if dot := strings.LastIndex(name, "."); dot > 0 {
		return name[:dot]
	}
	return name
}

func main() {
	var exit int
	defer func() {
		os.Exit(exit)
	}()
	buf := &bytes.Buffer{} // capture pre logfile setup logging
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(io.MultiWriter(os.Stderr, buf))
	args := parseArgs()
	if args.prefix == "" {
		args.prefix = defaultPrefix()
		log.Printf("output prefix was not set, using %q", args.prefix)
	}
	if logf, err := os.Create(fmt.Sprintf("%s.log", args.prefix)); err == nil {
		logf.Write(buf.Bytes()) // nolint
		log.SetOutput(io.MultiWriter(os.Stderr, logf))
		defer func() {
			log.SetOutput(os.Stderr)
			_ = logf.Close()
		}()
	} else {
		log.Printf("failed to create log file %s.log, %s", args.prefix, err)
	}
	log.Printf("mscoal %s", Version)
	log.Printf("invoked as: mscoal %s", strings.Join(os.Args[1:], " "))
	log.Printf("seed: %d", args.seed)
	if err := run(args); err != nil {
		log.Printf("%s %s", ErrorMessage, err)
		exit = 1
	}
}

func run(args Args) error {
	species, err := readSpeciesTree(args.speciesFile)
	if err != nil {
		return fmt.Errorf("reading species tree: %w", err)
	}
	log.Printf("species tree: %d tips, %d inner nodes", species.TipCount(), species.InnerCount())

	if args.constraintFile != "" {
		f, err := os.Open(args.constraintFile)
		if err != nil {
			return fmt.Errorf("opening constraints file: %w", err)
		}
		defer f.Close() // nolint
		engine := constraint.NewEngine(species)
		if err := engine.Apply(f); err != nil {
			return fmt.Errorf("applying constraints: %w", err)
		}
		log.Printf("constraints applied from %s", args.constraintFile)
	}

	mapping, err := readMapping(args.mappingFile)
	if err != nil {
		return fmt.Errorf("reading mapping file: %w", err)
	}

	loci := make([]initializer.LocusInput, len(args.alignmentFiles))
	rng := rand.New(rand.NewSource(args.seed))
	for i, path := range args.alignmentFiles {
		locus, err := readLocus(path, args.format)
		if err != nil {
			return fmt.Errorf("reading locus %s: %w", path, err)
		}
		loci[i] = initializer.LocusInput{
			Locus: locus,
			Rng:   rand.New(rand.NewSource(rng.Int63())),
		}
	}

	trees, err := initializer.InitAll(context.Background(), species, mapping, loci, args.nprocs)
	if err != nil {
		return fmt.Errorf("initializing gene trees: %w", err)
	}

	log.Printf("initialized %d starting gene trees", len(trees))
	for i, t := range args.alignmentFiles {
		log.Printf("locus %d (%s): %d tips", i, t, trees[i].TipCount())
	}
	log.Printf("mscoal builds starting gene trees only; the MCMC sampling loop is not implemented")
	return nil
}

func readSpeciesTree(path string) (*sptree.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint
	raw, err := newick.NewParser(f).Parse()
	if err != nil {
		return nil, err
	}
	return sptree.New(raw)
}

// readMapping reads whitespace-separated "individual species" pairs, one
// per line, skipping blank lines and lines beginning with '#'.
func readMapping(path string) (*initializer.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint

	var pairs [][2]string
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("mapping file line %d: expected \"individual species\", got %q", lineno, line)
		}
		pairs = append(pairs, [2]string{fields[0], fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return initializer.NewMapping(pairs)
}

func readLocus(path, format string) (initializer.Locus, error) {
	f, err := os.Open(path)
	if err != nil {
		return initializer.Locus{}, err
	}
	defer f.Close() // nolint

	var al align.Alignment
	switch format {
	case "phylip":
		parsed, err := phylip.NewParser(f).Parse()
		if err != nil {
			return initializer.Locus{}, err
		}
		al = parsed
	default:
		parsed, err := fasta.NewParser(f).Parse()
		if err != nil {
			return initializer.Locus{}, err
		}
		al = parsed
	}

	var locus initializer.Locus
	err = al.Iterate(func(name, sequence string) bool {
		locus.Sequences = append(locus.Sequences, initializer.Sequence{Label: name, Sites: []byte(sequence)})
		return false
	})
	if err != nil {
		return initializer.Locus{}, err
	}
	return locus, nil
}
