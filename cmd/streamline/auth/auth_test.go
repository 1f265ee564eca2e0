package authcmder_test

import (
	"bytes"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/streamline/cmd/streamline/auth"
	"github.com/papercomputeco/streamline/pkg/credentials"
)

// newCmd builds the auth command with the --config-dir flag the root
// command normally provides.
func newCmd(out *bytes.Buffer, args ...string) *cobra.Command {
	cmd := authcmder.NewAuthCmd()
	cmd.SetOut(out)
	cmd.PersistentFlags().String("config-dir", "", "Override path to .streamline/ config directory")
	cmd.SetArgs(args)
	return cmd
}

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "auth-test-*")
		Expect(err).NotTo(HaveOccurred())
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth [provider]"))
			Expect(cmd.Short).NotTo(BeEmpty())
			Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
		})
	})

	Describe("storing a key", func() {
		It("reads the key from piped input", func() {
			cmd := newCmd(out, "openrouter", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("  sk-or-test  \n"))
			Expect(cmd.Execute()).To(Succeed())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			key, err := mgr.GetKey("openrouter")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-or-test"))
			Expect(out.String()).To(ContainSubstring("OPENROUTER_API_KEY"))
		})

		It("rejects an empty key", func() {
			cmd := newCmd(out, "openai", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("   \n"))
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("API key cannot be empty")))
		})

		It("fails when no input is available", func() {
			cmd := newCmd(out, "openai", "--config-dir", tmpDir)
			cmd.SetIn(&bytes.Buffer{})
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("no input received")))
		})
	})

	Describe("--list flag", func() {
		It("shows no credentials when none stored", func() {
			Expect(newCmd(out, "--list", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No stored credentials"))
		})

		It("lists stored credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			Expect(newCmd(out, "--list", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("openai"))
			Expect(out.String()).To(ContainSubstring("OPENAI_API_KEY"))
			Expect(out.String()).NotTo(ContainSubstring("sk-test"))
			Expect(out.String()).To(ContainSubstring("*******"))
		})
	})

	Describe("--remove flag", func() {
		It("removes stored credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			Expect(newCmd(out, "--remove", "openai", "--config-dir", tmpDir).Execute()).To(Succeed())

			key, err := mgr.GetKey("openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("Removed"))
		})

		It("says so when nothing was stored", func() {
			Expect(newCmd(out, "--remove", "ollama", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No stored"))
		})
	})

	Describe("provider argument validation", func() {
		It("returns error when no provider given", func() {
			err := newCmd(out).Execute()
			Expect(err).To(MatchError(ContainSubstring("provider argument required")))
		})

		It("returns error for unsupported provider", func() {
			cmd := newCmd(out, "anthropic", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("sk-test\n"))
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("unsupported provider")))
		})
	})

	Describe("shell completion", func() {
		It("provides provider name completions", func() {
			cmd := authcmder.NewAuthCmd()
			completions, directive := cmd.ValidArgsFunction(cmd, []string{}, "")
			Expect(completions).To(ConsistOf("openrouter", "openai", "ollama"))
			Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
		})

		It("provides no completions after first arg", func() {
			cmd := authcmder.NewAuthCmd()
			completions, directive := cmd.ValidArgsFunction(cmd, []string{"openai"}, "")
			Expect(completions).To(BeNil())
			Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
		})
	})
})
