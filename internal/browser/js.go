package browser

import "fmt"

// Navigation landmark selectors. Pages served from file:// must declare the
// ARIA role explicitly; everywhere else a bare nav element also counts.
const (
	landmarkSelector     = `nav, [role="navigation"]`
	fileLandmarkSelector = `[role="navigation"]`
)

// readinessScript builds an in-page predicate that reports whether the page
// shows a usable navigation landmark: present, holding at least one link,
// with resolved text and background colors.
func readinessScript(strictRole bool) string {
	selector := landmarkSelector
	if strictRole {
		selector = fileLandmarkSelector
	}
	return fmt.Sprintf(`
	() => {
		const nav = document.querySelector(%q);
		if (!nav) return false;
		if (nav.querySelectorAll('a').length === 0) return false;
		const style = window.getComputedStyle(nav);
		return style.color !== '' && style.backgroundColor !== '';
	}`, selector)
}

// annotateScript outlines landmark links and pins an overlay panel listing
// their labels, so navigation structure survives into the capture. Returns
// the number of links touched.
const annotateScript = `
() => {
	let count = 0;
	const labels = [];
	for (const nav of document.querySelectorAll('nav, [role="navigation"]')) {
		for (const link of nav.querySelectorAll('a')) {
			link.style.outline = '2px solid #ff3b30';
			link.style.outlineOffset = '2px';
			const text = link.textContent.trim();
			if (text) labels.push(text);
			count++;
		}
	}
	if (labels.length > 0) {
		const panel = document.createElement('div');
		panel.style.cssText = 'position:fixed;top:8px;right:8px;z-index:2147483647;' +
			'background:rgba(0,0,0,0.78);color:#fff;font:12px monospace;' +
			'padding:8px 10px;border-radius:4px;max-width:320px;';
		panel.textContent = 'Navigation: ' + labels.join(' | ');
		document.body.appendChild(panel);
	}
	return count;
}`
