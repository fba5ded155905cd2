// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package platform

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter asks the operator for bench actions and menu choices.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and prints prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Wait prints msg and blocks until the operator presses Enter.
func (p *Prompter) Wait(msg string) error {
	_, _ = fmt.Fprintln(p.out, msg)
	_, err := p.readLine()
	return err
}

// Writer is where prompts go.
func (p *Prompter) Writer() io.Writer {
	return p.out
}

// Println prints one line of operator output.
func (p *Prompter) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// Choose prints the menu and reads one number. Anything that is not a
// number is ErrInvalidChoice; the rest of the line is discarded either way.
func (p *Prompter) Choose(menu ...string) (int, error) {
	_, _ = fmt.Fprintln(p.out, "Select the option")
	for _, m := range menu {
		_, _ = fmt.Fprintf(p.out, " %s\n", m)
	}
	_, _ = fmt.Fprint(p.out, " Please Select : ")
	line, err := p.readLine()
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty input", ErrInvalidChoice)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidChoice, fields[0])
	}
	_, _ = fmt.Fprintf(p.out, " You selected : %d\n", n)
	return n, nil
}
