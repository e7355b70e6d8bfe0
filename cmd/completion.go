package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_dirvault() {
    local cur prev words cword
    _init_completion || return

    local commands="init lock unlock relock recover rm ls status passwd diff reconcile log compact keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        lock)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--root --profile --debug" -- "$cur"))
            else
                _filedir -d
            fi
            ;;
        unlock)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--permanent --root --profile --debug" -- "$cur"))
            else
                # Complete with folder ids from the vault
                local ids
                ids=$(dirvault status 2>/dev/null | grep -E '^ +id: ' | sed 's/^ *id: //' | sed 's/ .*//')
                COMPREPLY=($(compgen -W "$ids" -- "$cur"))
            fi
            ;;
        rm|diff)
            if [[ "$cur" == -* ]]; then
                COMPREPLY=($(compgen -W "--force --root --profile --debug" -- "$cur"))
            else
                local ids
                ids=$(dirvault status 2>/dev/null | grep -E '^ +id: ' | sed 's/^ *id: //' | sed 's/ .*//')
                COMPREPLY=($(compgen -W "$ids" -- "$cur"))
            fi
            ;;
        reconcile)
            COMPREPLY=($(compgen -W "--repair --root --profile --debug" -- "$cur"))
            ;;
        log)
            COMPREPLY=($(compgen -W "-n --root --profile --debug" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save rm status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _dirvault dirvault
`

const zshCompletion = `#compdef dirvault

_dirvault() {
    local -a commands
    commands=(
        'init:Create a profile in the vault'
        'lock:Encrypt folders into the vault'
        'unlock:Restore folders from the vault'
        'relock:Seal temporarily unlocked folders again'
        'recover:Unlock with the recovery key'
        'rm:Remove folders from the vault'
        'ls:Show profile and folder status'
        'status:Show profile and folder status'
        'passwd:Change the master password'
        'diff:Show changes since a folder was sealed'
        'reconcile:Check vault consistency'
        'log:Show recent journal entries'
        'compact:Compact the journal database'
        'keyring:Manage the password in the OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'dirvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                lock)
                    _arguments \
                        '--root[Vault root directory]:directory:_files -/' \
                        '--profile[Profile name or id]' \
                        '*:folder:_files -/'
                    ;;
                unlock)
                    _arguments \
                        '--permanent[Remove the vault copy after unlocking]' \
                        '--root[Vault root directory]:directory:_files -/' \
                        '--profile[Profile name or id]' \
                        '*:folder id:_dirvault_folder_ids'
                    ;;
                rm)
                    _arguments \
                        '--force[Remove without confirmation]' \
                        '*:folder id:_dirvault_folder_ids'
                    ;;
                diff)
                    _arguments '*:folder id:_dirvault_folder_ids'
                    ;;
                reconcile)
                    _arguments '--repair[Repair what can safely be repaired]'
                    ;;
                keyring)
                    _values 'subcommand' save rm status
                    ;;
                help)
                    _describe -t commands 'dirvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_dirvault_folder_ids() {
    local -a ids
    ids=(${(f)"$(dirvault status 2>/dev/null | grep -E '^ +id: ' | sed 's/^ *id: //' | sed 's/ .*//')"})
    _describe -t ids 'folder ids' ids
}

_dirvault "$@"
`

const fishCompletion = `# dirvault fish completions

set -l commands init lock unlock relock recover rm ls status passwd diff reconcile log compact keyring help completion

complete -c dirvault -f

# Commands
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a profile'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a lock -d 'Encrypt folders into the vault'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a unlock -d 'Restore folders from the vault'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a relock -d 'Seal unlocked folders again'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a recover -d 'Unlock with the recovery key'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove folders from the vault'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'Show vault status'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change the master password'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Show changes since sealing'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a reconcile -d 'Check vault consistency'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a log -d 'Show recent journal entries'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact the journal'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage the password in the OS keyring'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c dirvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# lock takes directories
complete -c dirvault -n "__fish_seen_subcommand_from lock" -a "(__fish_complete_directories)"

# unlock flags
complete -c dirvault -n "__fish_seen_subcommand_from unlock" -l permanent -d 'Remove the vault copy after unlocking'

# rm flags
complete -c dirvault -n "__fish_seen_subcommand_from rm" -l force -d 'Remove without confirmation'

# reconcile flags
complete -c dirvault -n "__fish_seen_subcommand_from reconcile" -l repair -d 'Repair what can safely be repaired'

# keyring subcommands
complete -c dirvault -n "__fish_seen_subcommand_from keyring" -a "save rm status"

# help completions
complete -c dirvault -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c dirvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
