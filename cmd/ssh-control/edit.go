package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ssh-control/pkg/manager"
)

// hostFlags are the per-host settings shared by add-host and update-host.
type hostFlags struct {
	hostName, name, user, identityFile, auth string
	port                                     int
}

func (f *hostFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.hostName, "host-name", "", "Address used to connect")
	fs.StringVar(&f.name, "name", "", "Display name")
	fs.StringVarP(&f.user, "user", "u", "", "Login user")
	fs.IntVarP(&f.port, "port", "P", 0, "SSH port")
	fs.StringVarP(&f.identityFile, "identity-file", "i", "", "Private key path")
	fs.StringVar(&f.auth, "auth", "", "Preferred authentication: publickey or password")
}

// apply copies every flag the user set onto h.
func (f *hostFlags) apply(fs *pflag.FlagSet, h *manager.Host) error {
	if fs.Changed("auth") {
		switch a := manager.AuthMethod(f.auth); a {
		case manager.AuthPublicKey, manager.AuthPassword, "":
			h.PreferredAuthentication = a
		default:
			return fmt.Errorf("--auth must be publickey or password, got %q", f.auth)
		}
	}
	if fs.Changed("host-name") {
		h.HostName = f.hostName
	}
	if fs.Changed("name") {
		h.Name = f.name
	}
	if fs.Changed("user") {
		h.User = f.user
	}
	if fs.Changed("port") {
		h.Port = f.port
	}
	if fs.Changed("identity-file") {
		h.IdentityFile = f.identityFile
	}
	return nil
}

func (a *app) addGroupCmd() *cobra.Command {
	var (
		parent                               string
		user, identityFile, auth             string
		port                                 int
		remoteAddr, remoteUser, remotePasswd string
	)
	cmd := &cobra.Command{
		Use:   "add-group <name>",
		Short: "Add a group at the root or under --parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parentPath, err := parsePath(parent)
			if err != nil {
				return err
			}
			g := manager.Group{
				Name:                           args[0],
				DefaultUser:                    user,
				DefaultPort:                    port,
				DefaultIdentityFile:            identityFile,
				DefaultPreferredAuthentication: manager.AuthMethod(auth),
				Hosts:                          []manager.Host{},
			}
			if remoteAddr != "" {
				g.RemoteHosts = &manager.RemoteHostsConfig{Address: remoteAddr}
				if remoteUser != "" {
					g.RemoteHosts.BasicAuth = &manager.BasicAuth{Username: remoteUser, Password: remotePasswd}
				}
			}
			changed, err := a.store.AddGroup(g, parentPath)
			if err != nil {
				return err
			}
			if !changed {
				return notFoundf("no group at %s", parentPath)
			}
			where := "root"
			if len(parentPath) > 0 {
				where = parentPath.String()
			}
			fmt.Fprintln(a.stdout, a.theme().SuccessText(fmt.Sprintf("Added group %q under %s (%s)", g.Name, where, a.store.Describe())))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&parent, "parent", "", "Parent group path (empty for a top-level group)")
	fs.StringVarP(&user, "user", "u", "", "Default user for hosts in this group")
	fs.IntVarP(&port, "port", "P", 0, "Default port")
	fs.StringVarP(&identityFile, "identity-file", "i", "", "Default identity file")
	fs.StringVar(&auth, "auth", "", "Default preferred authentication")
	fs.StringVar(&remoteAddr, "remote", "", "Remote hosts URL; [timestamp] is replaced on every fetch")
	fs.StringVar(&remoteUser, "remote-user", "", "Basic auth user for --remote")
	fs.StringVar(&remotePasswd, "remote-password", "", "Basic auth password for --remote")
	return cmd
}

func (a *app) addHostCmd() *cobra.Command {
	var hf hostFlags
	cmd := &cobra.Command{
		Use:   "add-host <group-path> <hostName>",
		Short: "Append a host to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePath(args[0])
			if err != nil {
				return err
			}
			h := manager.Host{HostName: args[1]}
			if err := hf.apply(cmd.Flags(), &h); err != nil {
				return err
			}
			if h.Name == "" {
				h.Name = h.HostName
			}
			changed, err := a.store.AddHost(path, h)
			if err != nil {
				return err
			}
			if !changed {
				return notFoundf("no group at %s", path)
			}
			fmt.Fprintln(a.stdout, a.theme().SuccessText(fmt.Sprintf("Added host %q to %s", h.Name, path)))
			return nil
		},
	}
	hf.register(cmd.Flags())
	return cmd
}

func (a *app) updateHostCmd() *cobra.Command {
	var hf hostFlags
	cmd := &cobra.Command{
		Use:   "update-host <group-path> <index>",
		Short: "Change fields of an existing host; unset flags keep their value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePath(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			ref, ok := manager.HostAt(cfg, path, idx)
			if !ok {
				return notFoundf("no host at %s index %d", path, idx)
			}
			h := ref.Host
			if err := hf.apply(cmd.Flags(), &h); err != nil {
				return err
			}
			changed, err := a.store.UpdateHost(path, idx, h)
			if err != nil {
				return err
			}
			if !changed {
				return notFoundf("no host at %s index %d", path, idx)
			}
			fmt.Fprintln(a.stdout, a.theme().SuccessText(fmt.Sprintf("Updated host %q", h.Name)))
			return nil
		},
	}
	hf.register(cmd.Flags())
	return cmd
}

func (a *app) rmHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-host <group-path> <index>",
		Short: "Remove a host; later hosts in the group shift down",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePath(args[0])
			if err != nil {
				return err
			}
			idx, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			changed, err := a.store.DeleteHost(path, idx)
			if err != nil {
				return err
			}
			if !changed {
				return notFoundf("no host at %s index %d", path, idx)
			}
			fmt.Fprintln(a.stdout, a.theme().SuccessText(fmt.Sprintf("Removed host %s index %d", path, idx)))
			return nil
		},
	}
}

func (a *app) rmGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-group <group-path>",
		Short: "Remove a group with all its hosts and subgroups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := parsePath(args[0])
			if err != nil {
				return err
			}
			changed, err := a.store.DeleteGroup(path)
			if err != nil {
				return err
			}
			if !changed {
				return notFoundf("no group at %s", path)
			}
			fmt.Fprintln(a.stdout, a.theme().SuccessText(fmt.Sprintf("Removed group %s", path)))
			return nil
		},
	}
}
