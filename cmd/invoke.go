package cmd

import (
	"fmt"
	"strings"

	"github.com/killallgit/skillstream/pkg/config"
	"github.com/killallgit/skillstream/pkg/headless"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke [query]",
	Short: "Invoke a skill and stream its reply",
	Example: `  skillstream invoke "What is a goroutine?"
  skillstream invoke --skill skill-qna --query "Summarize" --context '{"resources":[{"resourceId":"r1"}]}'
  skillstream invoke --runtime extension -i "Draft a README"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInvoke,
}

func init() {
	flags := invokeCmd.Flags()
	flags.StringP("query", "q", "", "question to send (or pass it as the argument)")
	flags.StringP("skill", "s", "", "skill id to invoke (default is the scheduler)")
	flags.String("tpl", "", "skill template name")
	flags.String("conv", "", "conversation id (a new one is generated when empty)")
	flags.String("locale", "", "output locale")
	flags.String("context", "", "invocation context as a JSON object")
	flags.BoolP("interactive", "i", false, "render the stream in a full-screen view")

	flags.String("runtime", "", "transport runtime: web or extension")
	viper.BindPFlag("runtime", flags.Lookup("runtime"))
	flags.String("token", "", "bearer token for the web transport")
	viper.BindPFlag("web.token", flags.Lookup("token"))
	flags.String("base-url", "", "base url of the skill server")
	viper.BindPFlag("web.base_url", flags.Lookup("base-url"))
	flags.Bool("markdown", false, "render finished replies as markdown")
	viper.BindPFlag("console.markdown", flags.Lookup("markdown"))
}

func runInvoke(cmd *cobra.Command, args []string) error {
	opts, err := invokeOptions(cmd, args)
	if err != nil {
		return err
	}
	opts.Out = cmd.OutOrStdout()
	return headless.Run(cmd.Context(), config.Get(), opts)
}

// invokeOptions collects the flags of the invoke command
func invokeOptions(cmd *cobra.Command, args []string) (headless.Options, error) {
	flags := cmd.Flags()
	query, _ := flags.GetString("query")
	if query == "" && len(args) > 0 {
		query = args[0]
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return headless.Options{}, fmt.Errorf("a query is required")
	}

	opts := headless.Options{Query: query}
	opts.SkillID, _ = flags.GetString("skill")
	opts.TplName, _ = flags.GetString("tpl")
	opts.ConvID, _ = flags.GetString("conv")
	opts.Locale, _ = flags.GetString("locale")
	opts.Interactive, _ = flags.GetBool("interactive")

	raw, _ := flags.GetString("context")
	ctx, err := parseContext(raw)
	if err != nil {
		return headless.Options{}, err
	}
	opts.Context = ctx
	return opts, nil
}

func parseContext(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid --context: not valid JSON")
	}
	ctx, ok := gjson.Parse(raw).Value().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid --context: expected a JSON object")
	}
	return ctx, nil
}
