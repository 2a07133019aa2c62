package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive — подтверждение невозможно: stdin не терминал.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --yes)")

// ErrAborted — оператор отказался от операции.
var ErrAborted = errors.New("aborted")

// TerminalConfirm возвращает функцию подтверждения через терминал.
// Ответ читается из in, вопрос пишется в out.
func TerminalConfirm(in *os.File, out io.Writer) func(prompt string) (bool, error) {
	return func(prompt string) (bool, error) {
		if !term.IsTerminal(int(in.Fd())) {
			return false, ErrNotInteractive
		}
		return askYesNo(in, out, prompt)
	}
}

// askYesNo задаёт вопрос и ждёт "y" или "yes". Всё остальное — отказ.
func askYesNo(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
