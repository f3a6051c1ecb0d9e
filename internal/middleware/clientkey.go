package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// DefaultProxyHeader は信頼できるプロキシが元のクライアントアドレスを設定するヘッダー。
const DefaultProxyHeader = "X-Forwarded-For"

// ClientKeyResolver はレート制限のキーとなるクライアント識別子を決定する。
// プロキシヘッダーはTrustProxyHeadersが有効で、かつ接続元がTrustedProxiesに
// 含まれる場合のみ参照する。User-Agentなど他のヘッダーは一切参照しない。
type ClientKeyResolver struct {
	TrustProxyHeaders bool
	ProxyHeader       string // 空の場合はDefaultProxyHeader
	TrustedProxies    []netip.Prefix
}

// ClientKey はリクエストのクライアントキーを返す。
//
// ヘッダーは右から順に見て、信頼済みプロキシではない最初のアドレスを採用する。
// 左側の値はクライアントが自由に書けるため、キーには使わない。
func (c ClientKeyResolver) ClientKey(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	if !c.TrustProxyHeaders || !c.trusted(remote) {
		return remote
	}

	header := c.ProxyHeader
	if header == "" {
		header = DefaultProxyHeader
	}
	var hops []string
	for _, v := range r.Header.Values(header) {
		hops = append(hops, strings.Split(v, ",")...)
	}

	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			// 信頼済みプロキシが書いた値が読めない場合は接続元で数える
			return remote
		}
		if !c.trustedAddr(addr) {
			return addr.Unmap().String()
		}
	}
	return remote
}

func (c ClientKeyResolver) trusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return c.trustedAddr(addr)
}

func (c ClientKeyResolver) trustedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range c.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseTrustedProxies はカンマ区切りのCIDRまたはIPアドレスの一覧を解析する。
// 単一アドレスは/32(IPv6は/128)として扱う。
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy prefix %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// remoteHost はhost:port形式のアドレスからホスト部分を取り出す。
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
