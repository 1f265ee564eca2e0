package initcmder_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/streamline/cmd/streamline/initcmd"
	"github.com/papercomputeco/streamline/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "streamline-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	run := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(GinkgoWriter)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	It("creates a .streamline directory with a default config", func() {
		Expect(run()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".streamline"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Client.Endpoint).To(Equal(config.NewDefaultConfig().Client.Endpoint))
		Expect(cfg.Retry.MaxAttempts).To(Equal(uint(3)))
		Expect(cfg.Server.Listen).To(Equal(":8000"))
	})

	It("does not overwrite an existing config without --preset", func() {
		dir := filepath.Join(tmpDir, ".streamline")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		existing := "[client]\nmodel = \"keep-me\"\n"
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(existing), 0o600)).To(Succeed())

		Expect(run()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(existing))
	})

	Describe("--preset with provider presets", func() {
		It("creates config.toml with the openai preset", func() {
			Expect(run("--preset", "openai")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Client.Endpoint).To(Equal("https://api.openai.com/v1/chat/completions"))
			Expect(cfg.Client.APIKeyEnv).To(Equal("OPENAI_API_KEY"))
		})

		It("creates config.toml with the ollama preset", func() {
			Expect(run("--preset", "ollama")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Client.Endpoint).To(Equal("http://localhost:11434/v1/chat/completions"))
			Expect(cfg.Client.Model).To(Equal("llama3.2"))
		})

		It("rejects unknown preset names without creating anything", func() {
			err := run("--preset", "invalid-provider")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))

			_, err = os.Stat(filepath.Join(tmpDir, ".streamline"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("overwrites config.toml when re-run with a different preset", func() {
			Expect(run("--preset", "openai")).To(Succeed())
			Expect(loadConfig(tmpDir).Client.APIKeyEnv).To(Equal("OPENAI_API_KEY"))

			Expect(run("--preset", "ollama")).To(Succeed())
			Expect(loadConfig(tmpDir).Client.APIKeyEnv).To(Equal("OLLAMA_API_KEY"))
		})
	})

	Describe("--preset with remote URL", func() {
		It("fetches and writes remote config.toml", func() {
			remoteCfg := `version = 0

[client]
model = "remote-model"
endpoint = "https://llm.example.com/v1/chat/completions"

[retry]
max_attempts = 5
base_delay = "1s"
`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, remoteCfg)
			}))
			defer server.Close()

			Expect(run("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Client.Model).To(Equal("remote-model"))
			Expect(cfg.Client.Endpoint).To(Equal("https://llm.example.com/v1/chat/completions"))
			Expect(cfg.Retry.MaxAttempts).To(Equal(uint(5)))
			Expect(cfg.Retry.BaseDelay).To(Equal("1s"))
		})

		It("returns error for non-200 HTTP response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			Expect(run("--preset", server.URL)).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("returns error for invalid TOML from URL", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			Expect(run("--preset", server.URL)).To(MatchError(ContainSubstring("parsing")))
		})

		It("returns error for unreachable URL", func() {
			Expect(run("--preset", "http://127.0.0.1:1")).To(MatchError(ContainSubstring("fetching remote config")))
		})
	})
})

// loadConfig reads and parses the config.toml from the .streamline
// directory within the given base directory.
func loadConfig(baseDir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(baseDir, ".streamline", "config.toml"))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	ExpectWithOffset(1, toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
