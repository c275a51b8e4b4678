package iocli

import "io"

//go:generate moq -out io_mock.go . IO

// IO - ввод/вывод терминала для команд CLI
type IO interface {
	io.Writer
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	// ReadPassword читает строку без эха, если stdin - терминал
	ReadPassword(prompt string) (string, error)
}
