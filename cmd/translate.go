/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blacktop/xpublish/internal/config"
	"github.com/blacktop/xpublish/internal/translate"
)

func newTranslateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate text to English without posting",
		Example: `  xpublish translate "Привет, мир"
  cat draft.txt | xpublish translate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateForTranslation(); err != nil {
				return err
			}

			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				if text, err = readStdin(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if text == "" {
				return errors.New("text is required")
			}

			translator, err := translate.NewGemini(cmd.Context(), cfg.Translate)
			if err != nil {
				return err
			}
			out, err := translator.Translate(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("translate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
