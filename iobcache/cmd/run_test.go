package cmd

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/pflag"

	"github.com/sarchlab/iobcache/cache"
	"github.com/sarchlab/iobcache/datarecording"
)

func parseRunFlags(args ...string) (*pflag.FlagSet, error) {
	f := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(f)

	return f, f.Parse(args)
}

func mustReadOptions(args ...string) runOptions {
	f, err := parseRunFlags(args...)
	Expect(err).NotTo(HaveOccurred())

	opts, err := readRunOptions(f)
	Expect(err).NotTo(HaveOccurred())

	return opts
}

var small = []string{"--lines=8", "--addr-width=16", "--ways=2"}

var _ = Describe("Run command", func() {
	It("should default to the default cache", func() {
		opts := mustReadOptions()

		Expect(opts.config).To(Equal(cache.DefaultConfig()))
		Expect(opts.tests).To(Equal([]string{"all"}))
		Expect(opts.l2).To(BeNil())
	})

	It("should read the geometry and policies", func() {
		opts := mustReadOptions("--ways=8", "--write-policy=write_through",
			"--replacement=plru_tree", "--no-ctrl", "--l2", "--l2-ways=2")

		Expect(opts.config.NumWays).To(Equal(8))
		Expect(opts.config.WritePolicy).To(Equal(cache.WriteThrough))
		Expect(opts.config.ReplacementPolicy).To(Equal(cache.PLRUTree))
		Expect(opts.config.UseCtrl).To(BeFalse())
		Expect(opts.l2.NumWays).To(Equal(2))
		Expect(opts.l2.WritePolicy).To(Equal(cache.WriteBack))
		Expect(opts.l2.FrontEnd).To(Equal(cache.FrontEndPort))
	})

	It("should reject invalid caches", func() {
		f, err := parseRunFlags("--lines=3")
		Expect(err).NotTo(HaveOccurred())

		_, err = readRunOptions(f)
		Expect(err).To(MatchError(ContainSubstring("number of lines")))
	})

	It("should reject an L2 with smaller lines", func() {
		f, err := parseRunFlags("--l2", "--line-size=32", "--l2-line-size=16")
		Expect(err).NotTo(HaveOccurred())

		_, err = readRunOptions(f)
		Expect(err).To(MatchError(ContainSubstring("invalid L2 cache")))
		Expect(err).To(MatchError(ContainSubstring("line size 32")))
	})

	It("should take defaults from the environment", func() {
		os.Setenv("IOBCACHE_LINE_SIZE", "64")
		defer os.Unsetenv("IOBCACHE_LINE_SIZE")

		f, err := parseRunFlags("--ways=2")
		Expect(err).NotTo(HaveOccurred())
		Expect(applyEnv(f)).To(Succeed())

		opts, err := readRunOptions(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(opts.config.LineSize).To(Equal(64))
	})

	It("should prefer the command line over the environment", func() {
		os.Setenv("IOBCACHE_WAYS", "16")
		defer os.Unsetenv("IOBCACHE_WAYS")

		f, err := parseRunFlags("--ways=2")
		Expect(err).NotTo(HaveOccurred())
		Expect(applyEnv(f)).To(Succeed())

		opts, err := readRunOptions(f)
		Expect(err).NotTo(HaveOccurred())
		Expect(opts.config.NumWays).To(Equal(2))
	})

	It("should report bad environment values", func() {
		os.Setenv("IOBCACHE_WAYS", "many")
		defer os.Unsetenv("IOBCACHE_WAYS")

		f, err := parseRunFlags()
		Expect(err).NotTo(HaveOccurred())
		Expect(applyEnv(f)).NotTo(Succeed())
	})

	It("should select programs by name", func() {
		cfg := cache.DefaultConfig()

		programs, err := selectPrograms([]string{"data", "all"}, cfg, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(programs).To(HaveLen(7))
		Expect(programs[0].Name).To(Equal("data"))

		_, err = selectPrograms([]string{"nope"}, cfg, 1)
		Expect(err).To(HaveOccurred())
	})

	It("should run all the programs", func() {
		buf := new(bytes.Buffer)
		opts := mustReadOptions(small...)

		Expect(runTests(buf, opts)).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring("simple   PASS"))
		Expect(out).To(ContainSubstring("random   PASS"))
		Expect(out).NotTo(ContainSubstring("FAIL"))
		Expect(out).To(ContainSubstring("TB.Cache: hits="))
		Expect(out).To(ContainSubstring("VERSION     16"))
		Expect(out).To(ContainSubstring("events handled: "))
		Expect(out).To(ContainSubstring("write buffer: drains="))
	})

	It("should run through an L2", func() {
		buf := new(bytes.Buffer)
		opts := mustReadOptions(append(small,
			"--l2", "--l2-lines=16", "--mem-jitter=8", "--test=random")...)

		Expect(runTests(buf, opts)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("TB.L2: hits="))
	})

	It("should record the reports", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")
		opts := mustReadOptions(append(small, "--test=simple,data",
			"--record-db="+path)...)

		Expect(runTests(new(bytes.Buffer), opts)).To(Succeed())

		reader := datarecording.NewSQLiteReader(path)
		Expect(reader.Init()).To(Succeed())

		n, err := reader.Count("program_reports")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		n, err = reader.Count("registers")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(9))

		out := new(bytes.Buffer)
		Expect(inspectDB(out, path+".sqlite3")).To(Succeed())
		Expect(out.String()).To(MatchRegexp(`program_reports\s+2\n`))
		Expect(out.String()).To(MatchRegexp(`registers\s+9\n`))
	})

	It("should fail to inspect a missing database", func() {
		path := filepath.Join(GinkgoT().TempDir(), "missing")

		Expect(inspectDB(new(bytes.Buffer), path)).
			To(MatchError(ContainSubstring("cannot open database")))
	})
})

var _ = Describe("CSR map command", func() {
	It("should list every register", func() {
		buf := new(bytes.Buffer)
		printCSRMap(buf)

		for _, r := range cache.Registers() {
			Expect(buf.String()).To(ContainSubstring(r.Name))
		}

		Expect(buf.String()).To(ContainSubstring("INVALIDATE      32     1 W"))
	})
})
