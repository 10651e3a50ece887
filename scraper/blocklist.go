package scraper

import "strings"

// adDomains lists well-known ad and tracking hosts blocked when BlockAds
// is enabled. Subdomains are covered by the generated patterns.
var adDomains = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"facebook.net",
	"connect.facebook.net",
	"facebook.com",
	"fbcdn.net",
	"adnxs.com",
	"adsrvr.org",
	"amazon-adsystem.com",
	"criteo.com",
	"criteo.net",
	"outbrain.com",
	"taboola.com",
	"moatads.com",
	"pubmatic.com",
	"rubiconproject.com",
	"scorecardresearch.com",
	"quantserve.com",
	"hotjar.com",
	"mixpanel.com",
	"segment.io",
	"segment.com",
	"analytics.twitter.com",
	"ads-twitter.com",
	"static.ads-twitter.com",
	"chartbeat.com",
	"chartbeat.net",
	"optimizely.com",
	"zedo.com",
	"media.net",
	"contextweb.com",
	"bidswitch.net",
	"openx.net",
	"casalemedia.com",
	"demdex.net",
	"krxd.net",
	"bluekai.com",
	"exelator.com",
	"turn.com",
	"mathtag.com",
	"serving-sys.com",
	"eyeota.net",
	"agkn.com",
	"rlcdn.com",
	"sharethis.com",
	"addthis.com",
	"consensu.org",
}

// blockedURLPatterns builds the Network.setBlockedURLs pattern list.
func blockedURLPatterns(blockAds bool, extra []string) []string {
	patterns := make([]string, 0, len(extra)+2*len(adDomains))
	for _, p := range extra {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if blockAds {
		for _, d := range adDomains {
			patterns = append(patterns, "*://"+d+"/*", "*://*."+d+"/*")
		}
	}
	return patterns
}
