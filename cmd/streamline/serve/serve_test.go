package servecmder_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/streamline/api"
	servecmder "github.com/papercomputeco/streamline/cmd/streamline/serve"
)

func freeAddr() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	defer l.Close()
	return l.Addr().String()
}

var _ = Describe("Serve Command", func() {
	It("registers server, storage and client flags", func() {
		cmd := servecmder.NewServeCmd()
		for _, name := range []string{
			"listen", "workers", "kafka-brokers", "kafka-topic",
			"storage", "sqlite", "postgres",
			"model", "endpoint", "max-attempts", "base-delay", "api-key",
			"log-file", "log-format", "no-mcp",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8000"))
		Expect(cmd.Flags().Lookup("log-format").DefValue).To(Equal("pretty"))
	})

	It("rejects an unknown --log-format", func() {
		tmpDir, err := os.MkdirTemp("", "serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		cmd := servecmder.NewServeCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.PersistentFlags().Bool("debug", false, "")
		cmd.SetOut(GinkgoWriter)
		cmd.SetErr(GinkgoWriter)
		cmd.SetArgs([]string{"--config-dir", tmpDir, "--log-format", "xml"})

		Expect(cmd.Execute()).To(MatchError(ContainSubstring(`unknown log format "xml"`)))
	})

	Context("running", func() {
		var (
			tmpDir   string
			upstream *httptest.Server
			addr     string
			cancel   context.CancelFunc
			done     chan error
		)

		BeforeEach(func() {
			var err error
			tmpDir, err = os.MkdirTemp("", "serve-test-*")
			Expect(err).NotTo(HaveOccurred())

			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"id":"gen-9","model":"served","choices":[{"index":0,"message":{"role":"assistant","content":"pong"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
			}))

			addr = freeAddr()

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			cmd := servecmder.NewServeCmd()
			cmd.PersistentFlags().String("config-dir", "", "")
			cmd.PersistentFlags().Bool("debug", false, "")
			cmd.SetOut(GinkgoWriter)
			cmd.SetErr(GinkgoWriter)
			cmd.SetArgs([]string{
				"--config-dir", tmpDir,
				"--listen", addr,
				"--endpoint", upstream.URL,
				"--api-key", "sk-test",
				"--storage", "sqlite",
				"--sqlite", filepath.Join(tmpDir, "turns.db"),
				"--log-file", filepath.Join(tmpDir, "serve.log"),
			})

			done = make(chan error, 1)
			go func() {
				done <- cmd.ExecuteContext(ctx)
			}()

			Eventually(func() error {
				resp, err := http.Get("http://" + addr + "/ping")
				if err != nil {
					return err
				}
				resp.Body.Close()
				return nil
			}).WithTimeout(5 * time.Second).Should(Succeed())
		})

		AfterEach(func() {
			cancel()
			Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))
			upstream.Close()
			os.RemoveAll(tmpDir)
		})

		It("serves chat and records the exchange", func() {
			body := `{"conversation_id":"conv-1","messages":[{"role":"user","content":"ping?"}]}`
			resp, err := http.Post("http://"+addr+"/chat", "application/json", strings.NewReader(body))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chat api.ChatResponse
			Expect(json.NewDecoder(resp.Body).Decode(&chat)).To(Succeed())
			Expect(chat.Content).To(Equal("pong"))

			Eventually(func() int {
				r, err := http.Get("http://" + addr + "/conversations/conv-1/turns")
				if err != nil {
					return 0
				}
				defer r.Body.Close()
				var turns api.TurnsResponse
				if json.NewDecoder(r.Body).Decode(&turns) != nil {
					return 0
				}
				return turns.Count
			}).WithTimeout(5 * time.Second).Should(Equal(2))
		})

		It("writes JSON logs to --log-file", func() {
			data, err := os.ReadFile(filepath.Join(tmpDir, "serve.log"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"starting streamline"`))
		})
	})
})
